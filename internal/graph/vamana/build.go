package vamana

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ngmks/leann/internal/graph"
)

const medoidSampleSize = 1024

// Build implements graph.Backend. It follows the Vamana construction
// recipe: a random initial graph, an approximate medoid entry point, and
// two passes of greedy-search-then-RobustPrune — the first pass with
// alpha fixed to 1.0 (a plain degree-bounded prune, to get the graph
// into reasonable shape quickly), the second with the configured alpha
// (which admits longer-range edges, improving navigability) (§4.2.5).
func (g *Graph) Build(ctx context.Context, numNodes int, expand graph.Expander, dist graph.DistanceFunc, progress graph.ProgressFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if numNodes == 0 {
		g.nodes = nil
		g.hasEntry = false
		return nil
	}

	rng := rand.New(rand.NewSource(seedOrDefault(g.cfg.Seed)))

	g.nodes = make([]*node, numNodes)
	for i := range g.nodes {
		g.nodes[i] = &node{links: randomOutEdges(rng, i, numNodes, g.cfg.R)}
	}

	medoid, err := approximateMedoid(ctx, numNodes, rng, expand, dist)
	if err != nil {
		return fmt.Errorf("vamana: compute medoid: %w", err)
	}
	g.medoid = medoid
	g.hasEntry = true

	passes := []float32{1.0, g.cfg.Alpha}
	total := numNodes * len(passes)
	done := 0

	for _, alpha := range passes {
		order := rng.Perm(numNodes)
		for _, p := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := g.refineNode(ctx, uint32(p), alpha, expand, dist); err != nil {
				return fmt.Errorf("vamana: refine node %d: %w", p, err)
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
	}

	return nil
}

func seedOrDefault(seed int64) int64 {
	if seed == 0 {
		return 1
	}
	return seed
}

func randomOutEdges(rng *rand.Rand, self, n, r int) []uint32 {
	if n <= 1 {
		return nil
	}
	if r > n-1 {
		r = n - 1
	}
	seen := make(map[int]bool, r)
	out := make([]uint32, 0, r)
	for len(out) < r {
		c := rng.Intn(n)
		if c == self || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, uint32(c))
	}
	return out
}

// approximateMedoid samples up to medoidSampleSize nodes, fetches their
// vectors, computes the sample mean, and returns whichever sampled node
// lies closest to it — an approximation of the true medoid that avoids
// an O(n^2) distance computation.
func approximateMedoid(ctx context.Context, n int, rng *rand.Rand, expand graph.Expander, dist graph.DistanceFunc) (uint32, error) {
	sampleSize := n
	if sampleSize > medoidSampleSize {
		sampleSize = medoidSampleSize
	}
	sample := rng.Perm(n)[:sampleSize]
	nodes := make([]uint32, sampleSize)
	for i, s := range sample {
		nodes[i] = uint32(s)
	}

	vecs, err := expand(ctx, nodes)
	if err != nil {
		return 0, err
	}

	dim := len(vecs[0])
	mean := make([]float32, dim)
	for _, v := range vecs {
		for d := 0; d < dim; d++ {
			mean[d] += v[d]
		}
	}
	for d := range mean {
		mean[d] /= float32(sampleSize)
	}

	best := nodes[0]
	bestDist := dist(mean, vecs[0])
	for i := 1; i < sampleSize; i++ {
		if d := dist(mean, vecs[i]); d < bestDist {
			bestDist = d
			best = nodes[i]
		}
	}
	return best, nil
}

// refineNode runs a greedy search for p's own vector from the medoid,
// unions the result with p's current out-edges, and replaces them with
// the RobustPrune of that union. Every admitted neighbor also gets a
// back-edge, re-pruned if it now exceeds R.
func (g *Graph) refineNode(ctx context.Context, p uint32, alpha float32, expand graph.Expander, dist graph.DistanceFunc) error {
	vecs, err := expand(ctx, []uint32{p})
	if err != nil {
		return err
	}
	pVec := vecs[0]

	visited, err := g.greedySearch(ctx, pVec, g.medoid, g.cfg.L, expand, dist)
	if err != nil {
		return err
	}

	candidateSet := make(map[uint32]bool, len(visited)+len(g.nodes[p].links))
	candidates := make([]uint32, 0, len(visited)+len(g.nodes[p].links))
	for _, c := range visited {
		if c.Node != p && !candidateSet[c.Node] {
			candidateSet[c.Node] = true
			candidates = append(candidates, c.Node)
		}
	}
	for _, nb := range g.nodes[p].links {
		if nb != p && !candidateSet[nb] {
			candidateSet[nb] = true
			candidates = append(candidates, nb)
		}
	}

	pruned, err := g.robustPrune(ctx, p, pVec, candidates, alpha, expand, dist)
	if err != nil {
		return err
	}
	g.nodes[p].links = pruned

	for _, nb := range pruned {
		if err := g.addBackEdge(ctx, p, nb, alpha, expand, dist); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) addBackEdge(ctx context.Context, p, nb uint32, alpha float32, expand graph.Expander, dist graph.DistanceFunc) error {
	other := g.nodes[nb]
	for _, existing := range other.links {
		if existing == p {
			return nil
		}
	}
	other.links = append(other.links, p)
	if len(other.links) <= g.cfg.R {
		return nil
	}

	vecs, err := expand(ctx, []uint32{nb})
	if err != nil {
		return err
	}
	pruned, err := g.robustPrune(ctx, nb, vecs[0], other.links, alpha, expand, dist)
	if err != nil {
		return err
	}
	other.links = pruned
	return nil
}
