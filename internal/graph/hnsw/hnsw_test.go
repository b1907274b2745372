package hnsw

import (
	"context"
	"testing"

	"github.com/ngmks/leann/internal/graph"
	"github.com/stretchr/testify/require"
)

// gridVectors lays out n 2-D points on a line, far enough apart that
// nearest-neighbor search has an unambiguous answer.
func gridVectors(n int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = []float32{float32(i) * 10, 0}
	}
	return vecs
}

func expanderFor(vecs [][]float32) graph.Expander {
	return func(ctx context.Context, nodes []uint32) ([][]float32, error) {
		out := make([][]float32, len(nodes))
		for i, n := range nodes {
			out[i] = vecs[n]
		}
		return out, nil
	}
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func TestBuildAndSearchFindsNearest(t *testing.T) {
	vecs := gridVectors(50)
	expand := expanderFor(vecs)

	g := New(Config{M: 8, EfConstruction: 64, Seed: 42})
	err := g.Build(context.Background(), len(vecs), expand, squaredL2, nil)
	require.NoError(t, err)
	require.Equal(t, len(vecs), g.NumNodes())

	query := []float32{201, 0} // nearest to node 20
	results, err := g.Search(context.Background(), query, 3, 32, expand, squaredL2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, uint32(20), results[0].Node)
}

func TestSearchRespectsAcceptFilter(t *testing.T) {
	vecs := gridVectors(50)
	expand := expanderFor(vecs)

	g := New(Config{M: 8, EfConstruction: 64, Seed: 7})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	query := []float32{200, 0}
	accept := func(node uint32) bool { return node%2 == 1 } // only odd nodes pass
	results, err := g.Search(context.Background(), query, 3, 40, expand, squaredL2, accept)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.Equal(t, uint32(1), r.Node%2)
	}
}

func TestSaveOpenRoundTrip(t *testing.T) {
	vecs := gridVectors(30)
	expand := expanderFor(vecs)

	g := New(Config{M: 8, EfConstruction: 64, Seed: 1})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	dir := t.TempDir()
	require.NoError(t, g.Save(dir, "idx"))

	reopened, err := Open(dir, "idx", Config{M: 8, EfConstruction: 64, Seed: 1})
	require.NoError(t, err)
	require.Equal(t, g.NumNodes(), reopened.NumNodes())

	query := []float32{151, 0}
	results, err := reopened.Search(context.Background(), query, 1, 32, expand, squaredL2, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(15), results[0].Node)
}

func TestCompactPreservesSearchCorrectness(t *testing.T) {
	vecs := gridVectors(40)
	expand := expanderFor(vecs)

	g := New(Config{M: 8, EfConstruction: 64, Seed: 3})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	oldToNew, err := g.Compact(context.Background())
	require.NoError(t, err)
	require.Len(t, oldToNew, len(vecs))

	// Re-key the vector slice and expander using the same permutation the
	// builder would apply to the passage/embedding stores.
	newVecs := make([][]float32, len(vecs))
	for old, nw := range oldToNew {
		newVecs[nw] = vecs[old]
	}
	newExpand := expanderFor(newVecs)

	query := []float32{101, 0}
	results, err := g.Search(context.Background(), query, 1, 32, newExpand, squaredL2, nil)
	require.NoError(t, err)
	require.Equal(t, newVecs[results[0].Node], []float32{100, 0})
}

func TestPruneDoesNotDisconnectGraph(t *testing.T) {
	vecs := gridVectors(40)
	expand := expanderFor(vecs)

	g := New(Config{M: 8, EfConstruction: 64, Seed: 9})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	require.NoError(t, g.Prune(context.Background(), 0.9, expand, squaredL2))

	query := []float32{301, 0}
	results, err := g.Search(context.Background(), query, 1, 32, expand, squaredL2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestRandomLevelDistribution(t *testing.T) {
	g := New(Config{M: 16})
	counts := make(map[int]int)
	for i := 0; i < 1000; i++ {
		counts[g.randomLevel()]++
	}
	require.Greater(t, counts[0], 500) // most draws should land at level 0
}
