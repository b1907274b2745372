package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/embed/embedtest"
	"github.com/ngmks/leann/internal/filter"
	"github.com/ngmks/leann/internal/graph/hnsw"
	"github.com/ngmks/leann/internal/passage"
)

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// buildStore writes texts+metadata through a passage.Builder and opens
// the resulting Store, seeding provider with a known vector per text so
// distances are exact.
func buildStore(t *testing.T, dir string, provider *embedtest.Provider, passages []passage.Passage, vecs [][]float32) *passage.Store {
	t.Helper()
	b, err := passage.NewBuilder(dir, "idx")
	require.NoError(t, err)
	for i, p := range passages {
		_, err := b.Append(p.ID, p.Text, p.Metadata)
		require.NoError(t, err)
		provider.Seed(p.Text, vecs[i])
	}
	require.NoError(t, b.Finalize())

	store, err := passage.Open(dir, "idx")
	require.NoError(t, err)
	return store
}

func buildGraph(t *testing.T, store *passage.Store, provider *embedtest.Provider) *hnsw.Graph {
	t.Helper()
	g := hnsw.New(hnsw.Config{Seed: 7})
	expand := func(ctx context.Context, nodes []uint32) ([][]float32, error) {
		out := make([][]float32, len(nodes))
		for i, n := range nodes {
			p, err := store.GetByNode(int(n))
			require.NoError(t, err)
			vecs, err := provider.Encode(ctx, []string{p.Text}, embed.KindDocument)
			require.NoError(t, err)
			out[i] = vecs[0]
		}
		return out, nil
	}
	require.NoError(t, g.Build(context.Background(), store.N(), expand, squaredL2, nil))
	return g
}

func newSearcher(store *passage.Store, g *hnsw.Graph, provider *embedtest.Provider) *Searcher {
	return &Searcher{
		Passages: store,
		Backend:  g,
		Dist:     squaredL2,
		Provider: provider,
		Cache:    embed.NewCache(64),
		Retry:    embed.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Nanosecond, MaxDelay: time.Millisecond},
	}
}

func TestSearchExactMatchReturnsNearestFirst(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 2)
	passages := []passage.Passage{
		{ID: "a", Text: "alpha passage"},
		{ID: "b", Text: "beta passage"},
		{ID: "c", Text: "gamma passage"},
	}
	vecs := [][]float32{{0, 0}, {10, 0}, {20, 0}}

	store := buildStore(t, dir, provider, passages, vecs)
	defer store.Close()
	g := buildGraph(t, store, provider)

	provider.Seed("query near alpha", []float32{0.5, 0})
	s := newSearcher(store, g, provider)

	resp, err := s.Search(context.Background(), Params{QueryText: "query near alpha", K: 2, Ef: 10})
	require.NoError(t, err)
	require.False(t, resp.Partial)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "a", resp.Results[0].Passage.ID)
	require.Equal(t, "b", resp.Results[1].Passage.ID)
}

func TestSearchFilterForcesBruteForce(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 2)
	passages := []passage.Passage{
		{ID: "a", Text: "alpha passage", Metadata: map[string]interface{}{"lang": "en"}},
		{ID: "b", Text: "beta passage", Metadata: map[string]interface{}{"lang": "fr"}},
		{ID: "c", Text: "gamma passage", Metadata: map[string]interface{}{"lang": "en"}},
	}
	vecs := [][]float32{{0, 0}, {10, 0}, {1, 0}}

	store := buildStore(t, dir, provider, passages, vecs)
	defer store.Close()
	g := buildGraph(t, store, provider)

	provider.Seed("query", []float32{0, 0})
	s := newSearcher(store, g, provider)

	resp, err := s.Search(context.Background(), Params{
		QueryText:           "query",
		K:                   2,
		Ef:                  10,
		Filter:              filter.NewEqualityFilter("lang", "en"),
		BruteForceThreshold: 0.5, // EqualityFilter.EstimateSelectivity() == 0.1, forces brute force
	})
	require.NoError(t, err)
	require.False(t, resp.Partial)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		require.Equal(t, "en", r.Passage.Metadata["lang"])
	}
	require.Equal(t, "a", resp.Results[0].Passage.ID)
	require.Equal(t, "c", resp.Results[1].Passage.ID)
}

func TestSearchDegradesToPartialOnProviderFailure(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 2)
	passages := []passage.Passage{
		{ID: "a", Text: "alpha passage"},
		{ID: "b", Text: "beta passage"},
		{ID: "c", Text: "gamma passage"},
	}
	vecs := [][]float32{{0, 0}, {10, 0}, {20, 0}}

	store := buildStore(t, dir, provider, passages, vecs)
	defer store.Close()
	g := buildGraph(t, store, provider)

	provider.Seed("query", []float32{0, 0})
	s := newSearcher(store, g, provider)

	// Let exactly one more Encode call through (the query embedding in
	// Search below) and fail every call after it, so each cache miss
	// during candidate expansion exhausts its retries. Seed only
	// registers a vector; it does not count as an Encode call.
	provider.FailAfter = provider.Calls() + 2

	resp, err := s.Search(context.Background(), Params{QueryText: "query", K: 2, Ef: 10})
	require.NoError(t, err)
	require.True(t, resp.Partial)
	require.NotEmpty(t, resp.Reason)
	require.NotEmpty(t, resp.Results)
}

func TestSearchHybridRescoreBlendsLexicalAndVector(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 2)
	passages := []passage.Passage{
		{ID: "a", Text: "quick brown fox"},
		{ID: "b", Text: "slow red turtle"},
		{ID: "c", Text: "quick quick fox fox fox"},
	}
	vecs := [][]float32{{0, 0}, {0.1, 0}, {50, 0}}

	store := buildStore(t, dir, provider, passages, vecs)
	defer store.Close()
	g := buildGraph(t, store, provider)

	provider.Seed("fox query", []float32{0, 0})
	s := newSearcher(store, g, provider)

	resp, err := s.Search(context.Background(), Params{
		QueryText:   "fox query",
		K:           3,
		Ef:          10,
		HybridAlpha: 0.9,
	})
	require.NoError(t, err)
	require.False(t, resp.Partial)
	require.Len(t, resp.Results, 3)
	// "c" is vector-distant but lexically the strongest match; a high
	// alpha should pull it to the front over the lexically empty "b".
	ranks := make(map[string]int, len(resp.Results))
	for i, r := range resp.Results {
		ranks[r.Passage.ID] = i
	}
	require.Less(t, ranks["c"], ranks["b"])
}

func TestSearchRejectsEmptyQueryTextByDefault(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 2)
	passages := []passage.Passage{
		{ID: "a", Text: "alpha passage"},
		{ID: "b", Text: "beta passage"},
	}
	vecs := [][]float32{{0, 0}, {10, 0}}

	store := buildStore(t, dir, provider, passages, vecs)
	defer store.Close()
	g := buildGraph(t, store, provider)
	s := newSearcher(store, g, provider)

	_, err := s.Search(context.Background(), Params{QueryText: "", K: 2, Ef: 10})
	require.Error(t, err)

	_, err = s.Search(context.Background(), Params{QueryText: "", K: 2, Ef: 10, HybridAlpha: 0.5})
	require.Error(t, err, "alpha < 1 still requires non-empty query text")
}

func TestSearchAllowsEmptyQueryTextForLexicalOnlyHybrid(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 2)
	passages := []passage.Passage{
		{ID: "a", Text: "quick brown fox"},
		{ID: "b", Text: "slow red turtle"},
	}
	vecs := [][]float32{{0, 0}, {10, 0}}

	store := buildStore(t, dir, provider, passages, vecs)
	defer store.Close()
	g := buildGraph(t, store, provider)
	s := newSearcher(store, g, provider)

	provider.Seed("", []float32{0, 0})
	resp, err := s.Search(context.Background(), Params{QueryText: "", K: 2, Ef: 10, HybridAlpha: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
}
