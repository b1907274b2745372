package hnsw

import (
	"context"
	"sort"

	"github.com/ngmks/leann/internal/graph"
)

// Prune removes low-value edges from every node's adjacency lists using
// an occlusion test: a candidate neighbor c is dropped if some
// already-kept, closer neighbor k lies close enough to c that k already
// provides a path to it (dist(c, k) < threshold * dist(node, c)). Unlike
// the per-insertion degree bound enforced during Build, this is a
// global post-build pass with no size cap — it only removes edges that
// are provably redundant, trading some recall for fewer bytes of
// adjacency and fewer node visits per search (§4.2, "pruning").
func (g *Graph) Prune(ctx context.Context, threshold float32, expand graph.Expander, dist graph.DistanceFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for idx, nd := range g.nodes {
		nodeID := uint32(idx)
		for l := 0; l <= nd.level; l++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(nd.links[l]) <= 1 {
				continue
			}

			batch := make([]uint32, 0, len(nd.links[l])+1)
			batch = append(batch, nodeID)
			batch = append(batch, nd.links[l]...)

			vecs, err := expand(ctx, batch)
			if err != nil {
				return err
			}
			nodeVec := vecs[0]
			neighborVecs := vecs[1:]

			type scored struct {
				id   uint32
				vec  []float32
				dist float32
			}
			cands := make([]scored, len(nd.links[l]))
			for i, nb := range nd.links[l] {
				cands[i] = scored{id: nb, vec: neighborVecs[i], dist: dist(nodeVec, neighborVecs[i])}
			}
			sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })

			kept := make([]scored, 0, len(cands))
			for _, c := range cands {
				occluded := false
				for _, k := range kept {
					if dist(c.vec, k.vec) < threshold*c.dist {
						occluded = true
						break
					}
				}
				if !occluded {
					kept = append(kept, c)
				}
			}

			newLinks := make([]uint32, len(kept))
			for i, k := range kept {
				newLinks[i] = k.id
			}
			nd.links[l] = newLinks
		}
	}

	return nil
}
