package vamana

import (
	"context"
	"sort"

	"github.com/ngmks/leann/internal/graph"
)

// Search implements graph.Backend. It runs a greedy search from the
// medoid with candidate list size ef (falling back to the configured L
// when ef < L), then filters and truncates to k. Unlike hnsw's
// searchLayer, a Vamana greedy search naturally produces a single
// ranked candidate list rather than a frontier/results pair, so a
// restrictive accept predicate is applied after the walk completes
// instead of interleaved with it — widening ef is the lever available
// for recovering recall lost to filtering.
func (g *Graph) Search(ctx context.Context, query []float32, k, ef int, expand graph.Expander, dist graph.DistanceFunc, accept graph.AcceptFunc) ([]graph.Candidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}
	if ef < g.cfg.L {
		ef = g.cfg.L
	}
	if ef < k {
		ef = k
	}

	candidates, err := g.greedySearch(ctx, query, g.medoid, ef, expand, dist)
	if err != nil {
		return nil, err
	}

	if accept != nil {
		filtered := candidates[:0]
		for _, c := range candidates {
			if accept(c.Node) {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// greedySearch walks from start toward query, maintaining a sorted
// candidate list capped at size L, until every candidate in the list
// has been expanded.
func (g *Graph) greedySearch(ctx context.Context, query []float32, start uint32, l int, expand graph.Expander, dist graph.DistanceFunc) ([]graph.Candidate, error) {
	startVec, err := expand(ctx, []uint32{start})
	if err != nil {
		return nil, err
	}

	candidates := []graph.Candidate{{Node: start, Distance: dist(query, startVec[0])}}
	inList := map[uint32]bool{start: true}
	visited := make(map[uint32]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := -1
		for i, c := range candidates {
			if !visited[c.Node] {
				next = i
				break
			}
		}
		if next == -1 {
			break
		}
		cur := candidates[next]
		visited[cur.Node] = true

		neighbors := g.nodes[cur.Node].links
		toFetch := neighbors[:0:0]
		for _, nb := range neighbors {
			if !inList[nb] {
				toFetch = append(toFetch, nb)
			}
		}
		if len(toFetch) == 0 {
			continue
		}

		vecs, err := expand(ctx, toFetch)
		if err != nil {
			return nil, err
		}

		for i, nb := range toFetch {
			inList[nb] = true
			d := dist(query, vecs[i])
			pos := sort.Search(len(candidates), func(j int) bool { return candidates[j].Distance > d })
			candidates = append(candidates, graph.Candidate{})
			copy(candidates[pos+1:], candidates[pos:])
			candidates[pos] = graph.Candidate{Node: nb, Distance: d}
		}

		if len(candidates) > l {
			candidates = candidates[:l]
		}
	}

	return candidates, nil
}

// robustPrune implements Vamana's RobustPrune: repeatedly take the
// closest remaining candidate into the result, then discard any
// candidate that the just-admitted one already "covers" — where
// alpha * dist(admitted, v) <= dist(p, v) — stopping once R neighbors
// are chosen (§4.2.5). Higher alpha tolerates less coverage, admitting
// longer-range edges that improve navigability at the cost of degree.
func (g *Graph) robustPrune(ctx context.Context, p uint32, pVec []float32, candidateIDs []uint32, alpha float32, expand graph.Expander, dist graph.DistanceFunc) ([]uint32, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	vecs, err := expand(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id   uint32
		vec  []float32
		dist float32
	}
	remaining := make([]scored, len(candidateIDs))
	for i, id := range candidateIDs {
		remaining[i] = scored{id: id, vec: vecs[i], dist: dist(pVec, vecs[i])}
	}

	result := make([]uint32, 0, g.cfg.R)
	for len(remaining) > 0 && len(result) < g.cfg.R {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bestIdx := 0
		for i := 1; i < len(remaining); i++ {
			if remaining[i].dist < remaining[bestIdx].dist {
				bestIdx = i
			}
		}
		best := remaining[bestIdx]
		result = append(result, best.id)

		kept := remaining[:0]
		for i, c := range remaining {
			if i == bestIdx {
				continue
			}
			if alpha*dist(best.vec, c.vec) > c.dist {
				kept = append(kept, c)
			}
		}
		remaining = kept
	}

	return result, nil
}
