package vamana

import (
	"context"
	"testing"

	"github.com/ngmks/leann/internal/graph"
	"github.com/stretchr/testify/require"
)

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
	vecs := gridVectors(60)
	expand := expanderFor(vecs)

	g := New(Config{R: 8, L: 32, Alpha: 1.2, Seed: 11})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))
	require.Equal(t, len(vecs), g.NumNodes())

	query := []float32{301, 0}
	results, err := g.Search(context.Background(), query, 3, 40, expand, squaredL2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, uint32(30), results[0].Node)
}

func TestSearchRespectsAcceptFilter(t *testing.T) {
	vecs := gridVectors(60)
	expand := expanderFor(vecs)

	g := New(Config{R: 8, L: 32, Alpha: 1.2, Seed: 5})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	query := []float32{200, 0}
	accept := func(node uint32) bool { return node%2 == 1 }
	results, err := g.Search(context.Background(), query, 3, 40, expand, squaredL2, accept)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.Equal(t, uint32(1), r.Node%2)
	}
}

func TestSaveOpenRoundTrip(t *testing.T) {
	vecs := gridVectors(40)
	expand := expanderFor(vecs)

	g := New(Config{R: 8, L: 32, Alpha: 1.2, Seed: 2})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	dir := t.TempDir()
	require.NoError(t, g.Save(dir, "idx"))

	reopened, err := Open(dir, "idx", Config{R: 8, L: 32, Alpha: 1.2})
	require.NoError(t, err)
	require.Equal(t, g.NumNodes(), reopened.NumNodes())

	query := []float32{151, 0}
	results, err := reopened.Search(context.Background(), query, 1, 32, expand, squaredL2, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(15), results[0].Node)
}

func TestRobustPruneRespectsDegreeBound(t *testing.T) {
	vecs := gridVectors(80)
	expand := expanderFor(vecs)

	g := New(Config{R: 6, L: 32, Alpha: 1.2, Seed: 13})
	require.NoError(t, g.Build(context.Background(), len(vecs), expand, squaredL2, nil))

	for _, n := range g.nodes {
		require.LessOrEqual(t, len(n.links), g.cfg.R)
	}
}
