// Package passage implements the on-disk passage store: an append-only
// JSONL file of {id, text, metadata} records plus a binary offset table
// giving O(1) lookup by node index or passage id (engine spec §4.1).
package passage

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ngmks/leann/internal/mmapfile"
)

const (
	idxMagic   = "LPX1"
	idxVersion = uint32(1)
	idxHeaderSize = 16 // magic(4) + version(4) + N(8)
)

// Passage is one retrievable unit of text + metadata.
type Passage struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// record is the on-disk JSON shape; identical to Passage but kept
// separate so the wire format can diverge from the in-memory type later
// without touching callers.
type record struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Paths returns the jsonl and idx file paths for a store named `name`
// rooted at dir.
func Paths(dir, name string) (jsonlPath, idxPath string) {
	return filepath.Join(dir, name+".passages.jsonl"), filepath.Join(dir, name+".passages.idx")
}

// Builder appends passages during a build. It is not safe for concurrent
// use — the builder orchestrates ingest single-threaded (§4.6 phase 1).
type Builder struct {
	jsonlPath string
	idxPath   string
	file      *os.File
	writer    *bufio.Writer
	offsets   []uint64 // offsets[i] is the start of record i; grows by one per append
	seenIDs   map[string]struct{}
	closed    bool
}

// NewBuilder creates (or truncates) the jsonl file for a fresh build.
func NewBuilder(dir, name string) (*Builder, error) {
	jsonlPath, idxPath := Paths(dir, name)
	f, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("passage: create %s: %w", jsonlPath, err)
	}
	return &Builder{
		jsonlPath: jsonlPath,
		idxPath:   idxPath,
		file:      f,
		writer:    bufio.NewWriter(f),
		offsets:   []uint64{0},
		seenIDs:   make(map[string]struct{}),
	}, nil
}

// ErrDuplicateID is returned by Append when id was already appended in
// this build.
var ErrDuplicateID = fmt.Errorf("passage: duplicate id")

// Append writes a new passage record and returns its dense node index.
// Duplicate ids are rejected with ErrDuplicateID (§4.1, "Duplicate ids
// are rejected").
func (b *Builder) Append(id, text string, metadata map[string]interface{}) (int, error) {
	if _, exists := b.seenIDs[id]; exists {
		return 0, ErrDuplicateID
	}

	data, err := json.Marshal(record{ID: id, Text: text, Metadata: metadata})
	if err != nil {
		return 0, fmt.Errorf("passage: marshal record %s: %w", id, err)
	}
	data = append(data, '\n')

	n, err := b.writer.Write(data)
	if err != nil {
		return 0, fmt.Errorf("passage: write record %s: %w", id, err)
	}

	node := len(b.offsets) - 1
	last := b.offsets[len(b.offsets)-1]
	b.offsets = append(b.offsets, last+uint64(n))
	b.seenIDs[id] = struct{}{}
	return node, nil
}

// Len returns the number of passages appended so far.
func (b *Builder) Len() int { return len(b.offsets) - 1 }

// Finalize flushes the jsonl file and atomically writes the offset index
// (temp file + rename, per §3's "writer writes them atomically").
func (b *Builder) Finalize() error {
	if b.closed {
		return nil
	}
	if err := b.writer.Flush(); err != nil {
		return fmt.Errorf("passage: flush %s: %w", b.jsonlPath, err)
	}
	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("passage: sync %s: %w", b.jsonlPath, err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("passage: close %s: %w", b.jsonlPath, err)
	}
	b.closed = true

	return writeIndex(b.idxPath, b.offsets)
}

func writeIndex(idxPath string, offsets []uint64) error {
	tmpPath := idxPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("passage: create %s: %w", tmpPath, err)
	}

	w := bufio.NewWriter(f)
	header := make([]byte, idxHeaderSize)
	copy(header[0:4], idxMagic)
	binary.LittleEndian.PutUint32(header[4:8], idxVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(offsets)-1))
	if _, err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("passage: write header %s: %w", tmpPath, err)
	}

	buf := make([]byte, 8)
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(buf, off)
		if _, err := w.Write(buf); err != nil {
			f.Close()
			return fmt.Errorf("passage: write offset %s: %w", tmpPath, err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("passage: flush %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("passage: sync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("passage: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, idxPath); err != nil {
		return fmt.Errorf("passage: rename %s -> %s: %w", tmpPath, idxPath, err)
	}
	return nil
}

// Store is a read-only, opened passage store serving O(1) lookups by
// node index or passage id (§4.1).
type Store struct {
	jsonlPath string
	jsonl     *mmapfile.Mapped
	offsets   []uint64 // len = N+1, offsets[N] is the sentinel (jsonl file size)
	idToNode  map[string]int
}

// Open opens an existing passage store, validating the sentinel-offset
// invariant (§4.1: "if the final sentinel offset disagrees with the jsonl
// file size, the store reports Corrupt and refuses to serve").
func Open(dir, name string) (*Store, error) {
	jsonlPath, idxPath := Paths(dir, name)

	offsets, err := readIndex(idxPath)
	if err != nil {
		return nil, err
	}

	jsonl, err := mmapfile.Open(jsonlPath)
	if err != nil {
		return nil, fmt.Errorf("passage: open %s: %w", jsonlPath, err)
	}

	n := len(offsets) - 1
	if n > 0 {
		sentinel := offsets[n]
		if sentinel != uint64(len(jsonl.Data)) {
			jsonl.Close()
			return nil, fmt.Errorf("passage: %w: sentinel offset %d != file size %d", ErrCorrupt, sentinel, len(jsonl.Data))
		}
	}

	s := &Store{jsonlPath: jsonlPath, jsonl: jsonl, offsets: offsets, idToNode: make(map[string]int, n)}
	if err := s.loadIDIndex(); err != nil {
		jsonl.Close()
		return nil, err
	}
	return s, nil
}

// ErrCorrupt flags a structurally invalid passage store.
var ErrCorrupt = fmt.Errorf("passage: corrupt store")

// ErrOutOfRange flags a node index outside [0, N).
var ErrOutOfRange = fmt.Errorf("passage: node index out of range")

func readIndex(idxPath string) ([]uint64, error) {
	data, err := os.ReadFile(idxPath)
	if err != nil {
		return nil, fmt.Errorf("passage: read %s: %w", idxPath, err)
	}
	if len(data) < idxHeaderSize {
		return nil, fmt.Errorf("passage: %w: index file too small", ErrCorrupt)
	}
	if string(data[0:4]) != idxMagic {
		return nil, fmt.Errorf("passage: %w: bad magic in %s", ErrCorrupt, idxPath)
	}
	n := binary.LittleEndian.Uint64(data[8:16])
	want := idxHeaderSize + int(n+1)*8
	if len(data) != want {
		return nil, fmt.Errorf("passage: %w: index file size %d, expected %d", ErrCorrupt, len(data), want)
	}

	offsets := make([]uint64, n+1)
	cursor := data[idxHeaderSize:]
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(cursor[i*8 : i*8+8])
	}
	return offsets, nil
}

func (s *Store) loadIDIndex() error {
	for node := 0; node < s.N(); node++ {
		p, err := s.GetByNode(node)
		if err != nil {
			return err
		}
		s.idToNode[p.ID] = node
	}
	return nil
}

// N returns the number of passages in the store.
func (s *Store) N() int { return len(s.offsets) - 1 }

// GetByNode returns the passage at dense node index n.
func (s *Store) GetByNode(n int) (Passage, error) {
	if n < 0 || n >= s.N() {
		return Passage{}, fmt.Errorf("passage: %w: %d", ErrOutOfRange, n)
	}
	start, end := s.offsets[n], s.offsets[n+1]
	if end > uint64(len(s.jsonl.Data)) || start > end {
		return Passage{}, fmt.Errorf("passage: %w: bad offsets for node %d", ErrCorrupt, n)
	}
	line := s.jsonl.Data[start:end]

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Passage{}, fmt.Errorf("passage: %w: node %d: %v", ErrCorrupt, n, err)
	}
	return Passage{ID: rec.ID, Text: rec.Text, Metadata: rec.Metadata}, nil
}

// GetByID looks up a passage by its stable id via the in-memory map.
func (s *Store) GetByID(id string) (Passage, int, error) {
	node, ok := s.idToNode[id]
	if !ok {
		return Passage{}, 0, fmt.Errorf("passage: id %q not found", id)
	}
	p, err := s.GetByNode(node)
	return p, node, err
}

// NodeOf returns the dense node index for a passage id, if present.
func (s *Store) NodeOf(id string) (int, bool) {
	node, ok := s.idToNode[id]
	return node, ok
}

// Iter sequentially scans all passages in node-index order, used by the
// searcher's lazy lexical-sidecar construction and its filter scans.
func (s *Store) Iter(yield func(node int, p Passage) bool) {
	for node := 0; node < s.N(); node++ {
		p, err := s.GetByNode(node)
		if err != nil {
			return
		}
		if !yield(node, p) {
			return
		}
	}
}

// Close releases the underlying memory map.
func (s *Store) Close() error {
	return s.jsonl.Close()
}

var _ io.Closer = (*Store)(nil)
