package hnsw

import (
	"context"
	"fmt"

	"github.com/ngmks/leann/internal/graph"
	"github.com/ngmks/leann/internal/util"
)

// Search implements graph.Backend. It descends greedily from the top
// level to level 1 (ef=1), then runs a full beam search at level 0 with
// the requested ef, and returns up to k results ordered by ascending
// distance (§4.2.2, §4.4 step 3).
func (g *Graph) Search(ctx context.Context, query []float32, k, ef int, expand graph.Expander, dist graph.DistanceFunc, accept graph.AcceptFunc) ([]graph.Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	d, err := g.distanceToOne(ctx, query, g.entryPoint, expand, dist)
	if err != nil {
		return nil, err
	}
	cur := graph.Candidate{Node: g.entryPoint, Distance: d}

	for l := g.maxLevel; l > 0; l-- {
		found, err := g.searchLayer(ctx, query, []graph.Candidate{cur}, 1, l, expand, dist, nil)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			cur = found[0]
		}
	}

	found, err := g.searchLayer(ctx, query, []graph.Candidate{cur}, ef, 0, expand, dist, accept)
	if err != nil {
		return nil, err
	}

	if len(found) > k {
		found = found[:k]
	}
	return found, nil
}

// searchLayer runs a single-level beam search starting from entryPoints,
// exploring up to ef candidates. It mirrors the classic two-heap HNSW
// search: w is the frontier of not-yet-expanded candidates (nearest
// first), results is the bounded set of the ef best candidates seen so
// far (farthest on top, for O(1) worst-candidate eviction). accept, when
// non-nil, still lets rejected nodes participate in traversal — they are
// simply excluded from the returned result set.
func (g *Graph) searchLayer(ctx context.Context, query []float32, entryPoints []graph.Candidate, ef, level int, expand graph.Expander, dist graph.DistanceFunc, accept graph.AcceptFunc) ([]graph.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visited := make(map[uint32]bool, ef*2)
	w := util.NewMinHeap()
	results := util.NewMaxHeap(ef)

	for _, ep := range entryPoints {
		if visited[ep.Node] {
			continue
		}
		visited[ep.Node] = true
		c := &util.Candidate{Node: ep.Node, Distance: ep.Distance}
		w.Push(c)
		if accept == nil || accept(ep.Node) {
			results.Push(c)
		}
	}

	for w.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := w.Pop()
		if results.Full() && current.Distance > results.Top().Distance {
			break
		}

		cur := g.nodes[current.Node]
		if level >= len(cur.links) {
			continue
		}
		neighbors := cur.links[level]

		unvisited := make([]uint32, 0, len(neighbors))
		for _, nb := range neighbors {
			if !visited[nb] {
				visited[nb] = true
				unvisited = append(unvisited, nb)
			}
		}
		if len(unvisited) == 0 {
			continue
		}

		vecs, err := expand(ctx, unvisited)
		if err != nil {
			return nil, fmt.Errorf("hnsw: expand neighbors: %w", err)
		}

		for i, nb := range unvisited {
			d := dist(query, vecs[i])
			if !results.Full() || d < results.Top().Distance {
				c := &util.Candidate{Node: nb, Distance: d}
				w.Push(c)
				if accept == nil || accept(nb) {
					results.Push(c)
				}
			}
		}
	}

	sorted := results.Sorted()
	out := make([]graph.Candidate, len(sorted))
	for i, c := range sorted {
		out[i] = graph.Candidate{Node: c.Node, Distance: c.Distance}
	}
	return out, nil
}
