package hnsw

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ngmks/leann/internal/graph/graphio"
)

const (
	magic       = "LHN1"
	fileVersion = uint32(1)
	fileExt     = "hnsw"
)

// GraphPath returns the graph file path for an index named `name` in dir.
func GraphPath(dir, name string) string {
	return filepath.Join(dir, name+"."+fileExt)
}

// Save implements graph.Backend: it writes entry point, max level, a
// per-node level array, and each node's per-level adjacency lists, all
// wrapped in the shared graphio magic/CRC32 frame (§4.2).
func (g *Graph) Save(dir, name string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.nodes)

	size := 4 + 4 + 4 + 4 + n*4 // entryPoint, maxLevel, numNodes, M, levels
	for _, nd := range g.nodes {
		for l := 0; l <= nd.level; l++ {
			size += graphio.Uint32SliceSize(len(nd.links[l]))
		}
	}

	body := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint32(body[off:], g.entryPoint)
	off += 4
	binary.LittleEndian.PutUint32(body[off:], uint32(g.maxLevel))
	off += 4
	binary.LittleEndian.PutUint32(body[off:], uint32(n))
	off += 4
	binary.LittleEndian.PutUint32(body[off:], uint32(g.cfg.M))
	off += 4
	for _, nd := range g.nodes {
		binary.LittleEndian.PutUint32(body[off:], uint32(nd.level))
		off += 4
	}
	for _, nd := range g.nodes {
		for l := 0; l <= nd.level; l++ {
			off += graphio.PutUint32Slice(body[off:], nd.links[l])
		}
	}

	framed := graphio.Encode(magic, fileVersion, body)

	path := GraphPath(dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, framed, 0o644); err != nil {
		return fmt.Errorf("hnsw: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("hnsw: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// Open loads a graph previously written by Save.
func Open(dir, name string, cfg Config) (*Graph, error) {
	path := GraphPath(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hnsw: read %s: %w", path, err)
	}

	_, body, err := graphio.Decode(data, magic)
	if err != nil {
		return nil, fmt.Errorf("hnsw: decode %s: %w", path, err)
	}

	if len(body) < 16 {
		return nil, fmt.Errorf("hnsw: %s: truncated header", path)
	}
	off := 0
	entryPoint := binary.LittleEndian.Uint32(body[off:])
	off += 4
	maxLevel := binary.LittleEndian.Uint32(body[off:])
	off += 4
	n := binary.LittleEndian.Uint32(body[off:])
	off += 4
	persistedM := binary.LittleEndian.Uint32(body[off:])
	off += 4

	if len(body) < off+int(n)*4 {
		return nil, fmt.Errorf("hnsw: %s: truncated level array", path)
	}
	levels := make([]int, n)
	for i := range levels {
		levels[i] = int(binary.LittleEndian.Uint32(body[off:]))
		off += 4
	}

	// A zero-value Config means the caller wants the graph's own
	// self-described M rather than the package default (§4.2: the graph
	// file is self-describing — magic, version, N, M, entry point).
	if cfg.M <= 0 && persistedM > 0 {
		cfg.M = int(persistedM)
	}
	g := New(cfg)
	g.entryPoint = entryPoint
	g.maxLevel = int(maxLevel)
	g.hasEntry = n > 0
	g.nodes = make([]*node, n)

	for i := range g.nodes {
		nd := &node{level: levels[i], links: make([][]uint32, levels[i]+1)}
		for l := 0; l <= levels[i]; l++ {
			links, consumed, err := graphio.GetUint32Slice(body[off:])
			if err != nil {
				return nil, fmt.Errorf("hnsw: %s: node %d level %d: %w", path, i, l, err)
			}
			nd.links[l] = links
			off += consumed
		}
		g.nodes[i] = nd
	}

	return g, nil
}
