package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ngmks/leann/internal/graph"
	"github.com/ngmks/leann/internal/graph/graphio"
	"github.com/ngmks/leann/internal/mmapfile"
)

const (
	blobMagic   = "LEMB"
	blobVersion = uint32(1)
)

// BlobPath returns the embedding blob path for an index named `name`.
func BlobPath(dir, name string) string {
	return filepath.Join(dir, name+".embeddings")
}

// WriteBlob persists vectors (one per dense node index, all sharing
// dimension dim) as a single contiguous float32 array, written by every
// non-recompute build so searches can serve vectors without
// recomputation (§4.1).
func WriteBlob(dir, name string, dim int, vectors [][]float32) error {
	body := make([]byte, 8+len(vectors)*dim*4)
	binary.LittleEndian.PutUint32(body[0:4], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(body[4:8], uint32(dim))

	off := 8
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("embed: vector has dimension %d, blob dimension is %d", len(v), dim)
		}
		for _, f := range v {
			binary.LittleEndian.PutUint32(body[off:], math.Float32bits(f))
			off += 4
		}
	}

	framed := graphio.Encode(blobMagic, blobVersion, body)
	path := BlobPath(dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, framed, 0o644); err != nil {
		return fmt.Errorf("embed: write %s: %w", tmpPath, err)
	}
	return os.Rename(tmpPath, path)
}

// Blob is a read-only, memory-mapped embedding blob.
type Blob struct {
	mapped *mmapfile.Mapped
	dim    int
	n      int
	body   []byte
}

// OpenBlob memory-maps a previously written embedding blob.
func OpenBlob(dir, name string) (*Blob, error) {
	path := BlobPath(dir, name)
	mapped, err := mmapfile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("embed: open %s: %w", path, err)
	}

	_, body, err := graphio.Decode(mapped.Data, blobMagic)
	if err != nil {
		mapped.Close()
		return nil, fmt.Errorf("embed: decode %s: %w", path, err)
	}
	if len(body) < 8 {
		mapped.Close()
		return nil, fmt.Errorf("embed: %s: truncated header", path)
	}

	n := int(binary.LittleEndian.Uint32(body[0:4]))
	dim := int(binary.LittleEndian.Uint32(body[4:8]))
	want := 8 + n*dim*4
	if len(body) != want {
		mapped.Close()
		return nil, fmt.Errorf("embed: %s: body length %d, expected %d", path, len(body), want)
	}

	return &Blob{mapped: mapped, dim: dim, n: n, body: body}, nil
}

// Get returns the vector for node, a view into the memory-mapped file.
func (b *Blob) Get(node uint32) ([]float32, error) {
	if int(node) >= b.n {
		return nil, fmt.Errorf("embed: node %d out of range (blob has %d)", node, b.n)
	}
	start := 8 + int(node)*b.dim*4
	out := make([]float32, b.dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b.body[start+i*4:]))
	}
	return out, nil
}

// Expander returns a graph.Expander backed directly by the memory map,
// serving non-recompute searches with no recomputation (§4.1).
func (b *Blob) Expander() graph.Expander {
	return func(ctx context.Context, nodes []uint32) ([][]float32, error) {
		out := make([][]float32, len(nodes))
		for i, n := range nodes {
			v, err := b.Get(n)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

// Close releases the underlying memory map.
func (b *Blob) Close() error { return b.mapped.Close() }

