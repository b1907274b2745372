package leann

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngmks/leann/internal/embed/embedtest"
	"github.com/ngmks/leann/internal/graph/hnsw"
	"github.com/ngmks/leann/internal/meta"
)

func seededProvider() *embedtest.Provider {
	p := embedtest.New("mock-v1", 3)
	p.Seed("the cat sits on the mat", []float32{1, 0, 0})
	p.Seed("dogs bark at night", []float32{0, 1, 0})
	p.Seed("the mat is blue", []float32{0, 0, 1})
	p.Seed("cat mat", []float32{0.7, 0, 0.3})
	return p
}

func s1Docs() []Document {
	return []Document{
		{ID: "A", Text: "the cat sits on the mat"},
		{ID: "B", Text: "dogs bark at night"},
		{ID: "C", Text: "the mat is blue"},
	}
}

// TestBuildAndSearchRoundTrip is scenario S1: exact-match retrieval
// against a small, geometrically unambiguous corpus.
func TestBuildAndSearchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	provider := seededProvider()

	_, err := Build(context.Background(), dir, provider, s1Docs())
	require.NoError(t, err)

	searcher, err := NewSearcher(context.Background(), dir, provider)
	require.NoError(t, err)
	defer searcher.Close()

	resp, err := searcher.Search(context.Background(), "cat mat", 2)
	require.NoError(t, err)
	require.False(t, resp.Partial)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "A", resp.Results[0].Passage.ID)
	require.Equal(t, "C", resp.Results[1].Passage.ID)
}

// TestRecomputeParityMatchesStoredEmbeddings is scenario S2: building
// the same corpus once with its embeddings persisted in a blob (the
// default) and once in recompute mode must yield identical result ids
// and distances, since both modes feed the exact same deterministic
// vectors to the exact same graph algorithm.
func TestRecomputeParityMatchesStoredEmbeddings(t *testing.T) {
	dirCompact := t.TempDir()
	dirRecompute := t.TempDir()

	providerCompact := seededProvider()
	providerRecompute := seededProvider()

	_, err := Build(context.Background(), dirCompact, providerCompact, s1Docs())
	require.NoError(t, err)
	_, err = Build(context.Background(), dirRecompute, providerRecompute, s1Docs(), WithRecompute())
	require.NoError(t, err)

	searcherCompact, err := NewSearcher(context.Background(), dirCompact, providerCompact)
	require.NoError(t, err)
	defer searcherCompact.Close()
	searcherRecompute, err := NewSearcher(context.Background(), dirRecompute, providerRecompute)
	require.NoError(t, err)
	defer searcherRecompute.Close()

	respCompact, err := searcherCompact.Search(context.Background(), "cat mat", 2)
	require.NoError(t, err)
	respRecompute, err := searcherRecompute.Search(context.Background(), "cat mat", 2)
	require.NoError(t, err)

	require.Equal(t, len(respCompact.Results), len(respRecompute.Results))
	for i := range respCompact.Results {
		require.Equal(t, respCompact.Results[i].Passage.ID, respRecompute.Results[i].Passage.ID)
		require.InDelta(t, respCompact.Results[i].Distance, respRecompute.Results[i].Distance, 1e-6)
	}
}

// TestIdempotentRebuildProducesSameFingerprintAndGraphBytes is scenario
// S5: rebuilding the same corpus in a different ingest order, with the
// graph backend's RNG seed fixed, must reproduce the same build
// fingerprint and byte-identical graph file (law L2).
func TestIdempotentRebuildProducesSameFingerprintAndGraphBytes(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	docsA := s1Docs()
	docsB := []Document{docsA[2], docsA[0], docsA[1]}

	resA, err := Build(context.Background(), dirA, seededProvider(), docsA)
	require.NoError(t, err)
	resB, err := Build(context.Background(), dirB, seededProvider(), docsB)
	require.NoError(t, err)

	mA, err := meta.Load(dirA)
	require.NoError(t, err)
	mB, err := meta.Load(dirB)
	require.NoError(t, err)
	require.Equal(t, mA.BuildFingerprint, mB.BuildFingerprint)

	gA, err := os.ReadFile(hnsw.GraphPath(dirA, "index"))
	require.NoError(t, err)
	gB, err := os.ReadFile(hnsw.GraphPath(dirB, "index"))
	require.NoError(t, err)

	require.Equal(t, gA, gB, "graph file must be byte-identical across ingest orders with a fixed RNG seed")
	require.Equal(t, resA.NumPassages, resB.NumPassages)
}

// TestCompactKeepsPassageStoreConsistent guards against the on-disk
// passage store and the compacted graph disagreeing about which
// passage lives at which node: after WithCompact() permutes node
// indices, every result returned for a query must still be the
// passage whose text actually produced the matching vector.
func TestCompactKeepsPassageStoreConsistent(t *testing.T) {
	dir := t.TempDir()
	provider := seededProvider()

	docs := []Document{
		{ID: "A", Text: "the cat sits on the mat", Metadata: map[string]interface{}{"tag": "A"}},
		{ID: "B", Text: "dogs bark at night", Metadata: map[string]interface{}{"tag": "B"}},
		{ID: "C", Text: "the mat is blue", Metadata: map[string]interface{}{"tag": "C"}},
	}

	_, err := Build(context.Background(), dir, provider, docs, WithCompact())
	require.NoError(t, err)

	searcher, err := NewSearcher(context.Background(), dir, provider)
	require.NoError(t, err)
	defer searcher.Close()

	resp, err := searcher.Search(context.Background(), "cat mat", 3)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	for _, r := range resp.Results {
		require.Equal(t, r.Passage.Metadata["tag"], r.Passage.ID, "passage metadata must match the passage's own id after compaction")
	}
	require.Equal(t, "A", resp.Results[0].Passage.ID)
	require.Equal(t, "C", resp.Results[1].Passage.ID)
}

// TestPublicFilterNarrowsResults proves a caller outside this module's
// internal packages can construct and apply a filter purely through the
// public leann package surface (leann.Equal, WithFilter) — the filter
// API must be reachable without naming anything under internal/filter.
func TestPublicFilterNarrowsResults(t *testing.T) {
	dir := t.TempDir()
	provider := seededProvider()

	docs := []Document{
		{ID: "A", Text: "the cat sits on the mat", Metadata: map[string]interface{}{"kind": "feline"}},
		{ID: "B", Text: "dogs bark at night", Metadata: map[string]interface{}{"kind": "canine"}},
		{ID: "C", Text: "the mat is blue", Metadata: map[string]interface{}{"kind": "feline"}},
	}

	_, err := Build(context.Background(), dir, provider, docs)
	require.NoError(t, err)

	searcher, err := NewSearcher(context.Background(), dir, provider)
	require.NoError(t, err)
	defer searcher.Close()

	resp, err := searcher.Search(context.Background(), "cat mat", 3, WithFilter(Equal("kind", "canine")))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "B", resp.Results[0].Passage.ID)
}
