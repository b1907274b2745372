package hnsw

import (
	"context"
	"sort"

	"github.com/ngmks/leann/internal/graph"
)

// insert connects a freshly-allocated node into the graph. Callers must
// already hold g.mu for writing.
func (g *Graph) insert(ctx context.Context, nodeID uint32, vec []float32, level int, expand graph.Expander, dist graph.DistanceFunc) error {
	cur := graph.Candidate{Node: g.entryPoint}
	if d, err := g.distanceToOne(ctx, vec, g.entryPoint, expand, dist); err == nil {
		cur.Distance = d
	} else {
		return err
	}

	// Greedy descent from the top to level+1, ef=1.
	for l := g.maxLevel; l > level; l-- {
		found, err := g.searchLayer(ctx, vec, []graph.Candidate{cur}, 1, l, expand, dist, nil)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			cur = found[0]
		}
	}

	topLevel := level
	if g.maxLevel < topLevel {
		topLevel = g.maxLevel
	}

	for l := topLevel; l >= 0; l-- {
		found, err := g.searchLayer(ctx, vec, []graph.Candidate{cur}, g.cfg.EfConstruction, l, expand, dist, nil)
		if err != nil {
			return err
		}

		selected, err := g.selectNeighbors(ctx, vec, found, g.maxMForLevel(l), expand, dist)
		if err != nil {
			return err
		}

		g.connect(nodeID, selected, l)
		if err := g.pruneNeighbors(ctx, selected, l, expand, dist); err != nil {
			return err
		}

		if len(found) > 0 {
			cur = found[0]
		}
	}

	return nil
}

// connect adds bidirectional edges between nodeID and each selected
// neighbor at level l. Degree bounds on the neighbor side are restored
// afterward by pruneNeighbors.
func (g *Graph) connect(nodeID uint32, selected []graph.Candidate, level int) {
	self := g.nodes[nodeID]
	if level >= len(self.links) {
		return
	}
	for _, c := range selected {
		self.links[level] = append(self.links[level], c.Node)

		other := g.nodes[c.Node]
		if level < len(other.links) {
			other.links[level] = append(other.links[level], nodeID)
		}
	}
}

// pruneNeighbors re-applies the degree bound to every node touched by a
// new connection, so a popular neighbor's adjacency list never grows
// past maxMForLevel(level).
func (g *Graph) pruneNeighbors(ctx context.Context, touched []graph.Candidate, level int, expand graph.Expander, dist graph.DistanceFunc) error {
	maxM := g.maxMForLevel(level)
	for _, c := range touched {
		n := g.nodes[c.Node]
		if level >= len(n.links) || len(n.links[level]) <= maxM {
			continue
		}

		vecs, err := expand(ctx, []uint32{c.Node})
		if err != nil {
			return err
		}
		nodeVec := vecs[0]

		candidates := make([]graph.Candidate, 0, len(n.links[level]))
		for _, neighborID := range n.links[level] {
			d, err := g.distanceToOne(ctx, nodeVec, neighborID, expand, dist)
			if err != nil {
				return err
			}
			candidates = append(candidates, graph.Candidate{Node: neighborID, Distance: d})
		}

		selected, err := g.selectNeighbors(ctx, nodeVec, candidates, maxM, expand, dist)
		if err != nil {
			return err
		}

		newLinks := make([]uint32, len(selected))
		for i, s := range selected {
			newLinks[i] = s.Node
		}
		n.links[level] = newLinks
	}
	return nil
}

// selectNeighbors picks up to maxM candidates using a simple diversity
// heuristic: always take the closest, then, in distance order, admit
// further candidates unless one of the first three selected neighbors
// lies closer to the candidate than 0.8× the candidate's distance to the
// query (such a candidate adds little navigability). Slots still free
// after that pass are filled with the skipped candidates, closest first.
func (g *Graph) selectNeighbors(ctx context.Context, queryVec []float32, candidates []graph.Candidate, maxM int, expand graph.Expander, dist graph.DistanceFunc) ([]graph.Candidate, error) {
	if len(candidates) <= maxM {
		out := append([]graph.Candidate(nil), candidates...)
		sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
		return out, nil
	}

	sorted := append([]graph.Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	nodes := make([]uint32, len(sorted))
	for i, c := range sorted {
		nodes[i] = c.Node
	}
	vecs, err := expand(ctx, nodes)
	if err != nil {
		return nil, err
	}
	vecByNode := make(map[uint32][]float32, len(nodes))
	for i, n := range nodes {
		vecByNode[n] = vecs[i]
	}

	const redundancyFactor = 0.8
	const checkLimit = 3

	selected := make([]graph.Candidate, 0, maxM)
	selected = append(selected, sorted[0])

	for i := 1; i < len(sorted) && len(selected) < maxM; i++ {
		cand := sorted[i]
		candVec := vecByNode[cand.Node]

		keep := true
		limit := checkLimit
		if limit > len(selected) {
			limit = len(selected)
		}
		for j := 0; j < limit; j++ {
			selVec := vecByNode[selected[j].Node]
			if selVec == nil {
				continue
			}
			distToSelected := dist(candVec, selVec)
			if distToSelected < cand.Distance*redundancyFactor {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, cand)
		}
	}

	for i := 1; i < len(sorted) && len(selected) < maxM; i++ {
		cand := sorted[i]
		already := false
		for _, s := range selected {
			if s.Node == cand.Node {
				already = true
				break
			}
		}
		if !already {
			selected = append(selected, cand)
		}
	}

	return selected, nil
}

// distanceToOne computes the distance from an already-resolved vector
// to a single node, fetching that node's vector through expand.
func (g *Graph) distanceToOne(ctx context.Context, vec []float32, node uint32, expand graph.Expander, dist graph.DistanceFunc) (float32, error) {
	vecs, err := expand(ctx, []uint32{node})
	if err != nil {
		return 0, err
	}
	return dist(vec, vecs[0]), nil
}
