// Package graph defines the ANN backend abstraction the search and build
// orchestrators depend on. The defining property of this engine's graphs
// (§4.2) is that they never hold vectors themselves: every distance
// evaluation goes through an Expander callback supplied by the caller,
// so the same graph topology serves both "recompute" mode (vectors
// regenerated from passage text on demand) and non-recompute mode
// (vectors stored in a companion blob).
package graph

import "context"

// Expander fetches the vectors for a batch of node indices. It is the
// single seam through which a backend ever sees vector data — backends
// operate purely on node indices and the distances Expander lets them
// compute.
type Expander func(ctx context.Context, nodes []uint32) ([][]float32, error)

// DistanceFunc computes the distance between two vectors under the
// index's configured metric.
type DistanceFunc func(a, b []float32) float32

// ProgressFunc reports build progress as (nodes built, total nodes).
type ProgressFunc func(done, total int)

// AcceptFunc reports whether a node passes the caller's metadata/time
// filter. A nil AcceptFunc accepts every node.
type AcceptFunc func(node uint32) bool

// Candidate is a single scored graph node, used by Search results.
type Candidate struct {
	Node     uint32
	Distance float32
}

// Backend is the interface both the HNSW and Vamana graphs satisfy.
// Build and Search never see raw vectors directly; they ask Expander for
// them, batched, so an embedding provider can be invoked concurrently
// without the graph caring whether vectors are cached, recomputed, or
// memory-mapped from a blob.
type Backend interface {
	// Build constructs the graph over numNodes nodes (indices
	// [0, numNodes)), using dist to compare vectors fetched through
	// expand. progress, if non-nil, is called periodically.
	Build(ctx context.Context, numNodes int, expand Expander, dist DistanceFunc, progress ProgressFunc) error

	// Search performs a beam search from the graph's entry point toward
	// query, expanding up to ef candidates and returning up to k results
	// ordered by ascending distance. accept filters which nodes may
	// appear in the result set (and, per the engine's filtered-search
	// design, still participate in graph traversal even when rejected).
	Search(ctx context.Context, query []float32, k, ef int, expand Expander, dist DistanceFunc, accept AcceptFunc) ([]Candidate, error)

	// Save persists the graph to <dir>/<name>.<ext> in the backend's
	// binary format.
	Save(dir, name string) error

	// NumNodes reports how many nodes the graph currently holds.
	NumNodes() int
}
