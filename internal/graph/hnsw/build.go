package hnsw

import (
	"context"
	"fmt"

	"github.com/ngmks/leann/internal/graph"
)

// Build implements graph.Backend. Nodes are inserted in index order
// 0..numNodes-1; each insertion fetches its own vector and the vectors
// of whatever candidates the search touches through expand, batched per
// neighbor list rather than one node at a time.
func (g *Graph) Build(ctx context.Context, numNodes int, expand graph.Expander, dist graph.DistanceFunc, progress graph.ProgressFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make([]*node, 0, numNodes)
	g.hasEntry = false
	g.maxLevel = 0

	for i := 0; i < numNodes; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		level := g.randomLevel()
		n := &node{level: level, links: make([][]uint32, level+1)}
		for l := range n.links {
			n.links[l] = make([]uint32, 0, g.maxMForLevel(l))
		}

		nodeID := uint32(len(g.nodes))
		g.nodes = append(g.nodes, n)

		if !g.hasEntry {
			g.entryPoint = nodeID
			g.maxLevel = level
			g.hasEntry = true
			if progress != nil {
				progress(i+1, numNodes)
			}
			continue
		}

		vecs, err := expand(ctx, []uint32{nodeID})
		if err != nil {
			return fmt.Errorf("hnsw: fetch vector for node %d: %w", nodeID, err)
		}
		if len(vecs) != 1 {
			return fmt.Errorf("hnsw: expander returned %d vectors for 1 node", len(vecs))
		}

		if err := g.insert(ctx, nodeID, vecs[0], level, expand, dist); err != nil {
			return fmt.Errorf("hnsw: insert node %d: %w", nodeID, err)
		}

		if level > g.maxLevel {
			g.entryPoint = nodeID
			g.maxLevel = level
		}

		if progress != nil {
			progress(i+1, numNodes)
		}
	}

	return nil
}
