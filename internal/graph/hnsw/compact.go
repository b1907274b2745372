package hnsw

import "context"

// Compact reorders the graph's dense node indices by a breadth-first
// traversal from the entry point over level-0 adjacency, so that nodes
// likely to be visited together during a search sit near each other in
// the eventual passage/embedding layout ("compact" mode, §4.2). Any node
// unreachable from the entry point is appended afterward in its original
// order. It returns oldToNew, the permutation callers must apply to any
// parallel per-node data (passage store, embedding blob) to keep them in
// sync with the graph.
func (g *Graph) Compact(ctx context.Context) ([]uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.nodes)
	if n == 0 {
		return nil, nil
	}

	visited := make([]bool, n)
	order := make([]uint32, 0, n)
	queue := []uint32{g.entryPoint}
	visited[g.entryPoint] = true

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		node := g.nodes[cur]
		if len(node.links) == 0 {
			continue
		}
		for _, nb := range node.links[0] {
			if !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	for i := uint32(0); i < uint32(n); i++ {
		if !visited[i] {
			order = append(order, i)
		}
	}

	oldToNew := make([]uint32, n)
	for newIdx, oldIdx := range order {
		oldToNew[oldIdx] = uint32(newIdx)
	}

	newNodes := make([]*node, n)
	for oldIdx, nd := range g.nodes {
		remapped := make([][]uint32, len(nd.links))
		for l, links := range nd.links {
			rl := make([]uint32, len(links))
			for i, nb := range links {
				rl[i] = oldToNew[nb]
			}
			remapped[l] = rl
		}
		newNodes[oldToNew[oldIdx]] = &node{level: nd.level, links: remapped}
	}

	g.nodes = newNodes
	g.entryPoint = oldToNew[g.entryPoint]
	return oldToNew, nil
}
