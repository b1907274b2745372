// Package vamana implements a single-layer Vamana/DiskANN-style graph:
// alpha-pruned out-edges built over two passes, with one medoid entry
// point instead of HNSW's layered hierarchy (§4.2.5). Like the hnsw
// package, it never stores vectors — every distance goes through the
// graph.Expander callback supplied at Build/Search time.
package vamana

import (
	"sync"

	"github.com/ngmks/leann/internal/graph"
)

// Config holds Vamana's construction parameters.
type Config struct {
	R     int     // max out-degree per node
	L     int     // candidate list size during greedy search / construction
	Alpha float32 // pruning aggressiveness, >= 1.0
	Seed  int64
}

const (
	defaultR     = 32
	defaultL     = 64
	defaultAlpha = 1.2
)

func (c Config) withDefaults() Config {
	if c.R <= 0 {
		c.R = defaultR
	}
	if c.L <= 0 {
		c.L = defaultL
	}
	if c.Alpha < 1.0 {
		c.Alpha = defaultAlpha
	}
	return c
}

type node struct {
	links []uint32
}

// Graph is a Vamana index over dense node indices [0, N). It implements
// graph.Backend.
type Graph struct {
	mu       sync.RWMutex
	cfg      Config
	nodes    []*node
	medoid   uint32
	hasEntry bool
}

// New constructs an empty graph ready for Build.
func New(cfg Config) *Graph {
	return &Graph{cfg: cfg.withDefaults()}
}

// NumNodes implements graph.Backend.
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Medoid returns the graph's single entry point.
func (g *Graph) Medoid() (uint32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.medoid, g.hasEntry
}

var _ graph.Backend = (*Graph)(nil)
