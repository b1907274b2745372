// Package hnsw implements a Hierarchical Navigable Small World graph
// that never stores vectors itself (§4.2): every node holds only its
// level and per-level adjacency lists, and every distance computation
// goes through the graph.Expander callback supplied at Build/Search
// time. This is what lets the same graph serve "recompute" mode
// (vectors regenerated from passage text) and non-recompute mode
// (vectors held in a companion blob) without caring which one it's in.
package hnsw

import (
	"math"
	"math/rand"
	"sync"

	"github.com/ngmks/leann/internal/graph"
)

// Config holds the construction-time parameters for a Graph (§4.2).
type Config struct {
	M              int   // max bidirectional links per node above level 0
	EfConstruction int   // dynamic candidate list size during insertion
	Seed           int64 // layer-draw RNG seed, for reproducible builds
}

const (
	defaultM              = 16
	defaultEfConstruction = 200
	// level0Multiplier widens level 0's degree bound relative to M,
	// matching the standard HNSW recommendation of 2M at the base layer.
	level0Multiplier = 2.0
)

func (c Config) withDefaults() Config {
	if c.M <= 0 {
		c.M = defaultM
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = defaultEfConstruction
	}
	return c
}

type node struct {
	level int
	links [][]uint32 // links[l] are neighbor node indices at level l
}

// Graph is an HNSW index over dense node indices [0, N). It implements
// graph.Backend.
type Graph struct {
	mu         sync.RWMutex
	cfg        Config
	nodes      []*node
	entryPoint uint32
	hasEntry   bool
	maxLevel   int
	rng        *rand.Rand
	mL         float64 // level-generation multiplier, 1/ln(M)
}

// New constructs an empty graph ready for Build.
func New(cfg Config) *Graph {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &Graph{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
		mL:  1.0 / math.Log(float64(cfg.M)),
	}
}

// NumNodes implements graph.Backend.
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EntryPoint returns the current top-level entry point node, if any.
func (g *Graph) EntryPoint() (uint32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint, g.hasEntry
}

func (g *Graph) maxMForLevel(level int) int {
	if level == 0 {
		return int(float64(g.cfg.M) * level0Multiplier)
	}
	return g.cfg.M
}

// randomLevel draws a node's level from the geometric distribution
// standard to HNSW: level = floor(-ln(U) * mL), capped so a single
// build can't produce pathologically deep towers.
func (g *Graph) randomLevel() int {
	const maxLevel = 32
	u := g.rng.Float64()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	level := int(-math.Log(u) * g.mL)
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

var _ graph.Backend = (*Graph)(nil)
