package vamana

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ngmks/leann/internal/graph/graphio"
)

const (
	magic       = "LVM1"
	fileVersion = uint32(1)
	fileExt     = "vamana"
)

// GraphPath returns the graph file path for an index named `name` in dir.
func GraphPath(dir, name string) string {
	return filepath.Join(dir, name+"."+fileExt)
}

// Save implements graph.Backend: medoid, node count, then each node's
// adjacency list, wrapped in the shared graphio magic/CRC32 frame.
func (g *Graph) Save(dir, name string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.nodes)
	size := 4 + 4
	for _, nd := range g.nodes {
		size += graphio.Uint32SliceSize(len(nd.links))
	}

	body := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(body[off:], g.medoid)
	off += 4
	binary.LittleEndian.PutUint32(body[off:], uint32(n))
	off += 4
	for _, nd := range g.nodes {
		off += graphio.PutUint32Slice(body[off:], nd.links)
	}

	framed := graphio.Encode(magic, fileVersion, body)

	path := GraphPath(dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, framed, 0o644); err != nil {
		return fmt.Errorf("vamana: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vamana: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// Open loads a graph previously written by Save.
func Open(dir, name string, cfg Config) (*Graph, error) {
	path := GraphPath(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vamana: read %s: %w", path, err)
	}

	_, body, err := graphio.Decode(data, magic)
	if err != nil {
		return nil, fmt.Errorf("vamana: decode %s: %w", path, err)
	}
	if len(body) < 8 {
		return nil, fmt.Errorf("vamana: %s: truncated header", path)
	}

	off := 0
	medoid := binary.LittleEndian.Uint32(body[off:])
	off += 4
	n := binary.LittleEndian.Uint32(body[off:])
	off += 4

	g := New(cfg)
	g.medoid = medoid
	g.hasEntry = n > 0
	g.nodes = make([]*node, n)
	for i := range g.nodes {
		links, consumed, err := graphio.GetUint32Slice(body[off:])
		if err != nil {
			return nil, fmt.Errorf("vamana: %s: node %d: %w", path, i, err)
		}
		g.nodes[i] = &node{links: links}
		off += consumed
	}

	return g, nil
}
