package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/embed/embedtest"
	"github.com/ngmks/leann/internal/graph/hnsw"
	"github.com/ngmks/leann/internal/meta"
	"github.com/ngmks/leann/internal/obs"
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

func testParams(dir string, provider *embedtest.Provider) Params {
	return Params{
		Dir:         dir,
		IndexName:   "idx",
		Backend:     hnsw.New(hnsw.Config{Seed: 3}),
		BackendName: "hnsw",
		Provider:    provider,
		Metric:      "l2",
		Dist:        squaredL2,
		Retry:       embed.DefaultRetryPolicy,
		HNSWParams:  &meta.HNSWParams{M: 16, EfConstruction: 200},
	}
}

func TestBuildProducesOpenableManifestAndArtifacts(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 3)
	docs := []Document{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "beta"},
		{ID: "c", Text: "gamma"},
	}

	result, err := Build(context.Background(), testParams(dir, provider), docs)
	require.NoError(t, err)
	require.Equal(t, 3, result.NumPassages)
	require.NotEmpty(t, result.Manifest.BuildFingerprint)

	require.True(t, ManifestExists(dir))
	m, err := meta.Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, m.NumPassages)
	require.Equal(t, "hnsw", m.Backend)

	store, err := passage.Open(dir, "idx")
	require.NoError(t, err)
	defer store.Close()
	require.Equal(t, 3, store.N())

	_, err = os.Stat(embed.BlobPath(dir, "idx"))
	require.NoError(t, err, "non-recompute build should persist an embedding blob")

	_, err = os.Stat(lockPath(dir))
	require.True(t, os.IsNotExist(err), "lock file should be released after a successful build")
}

func TestBuildSkipsDuplicateIDsAndRecordsSkipMetric(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 3)
	docs := []Document{
		{ID: "a", Text: "alpha"},
		{ID: "a", Text: "alpha again, different text"},
		{ID: "b", Text: "beta"},
	}

	params := testParams(dir, provider)
	params.Metrics = obs.NewMetrics()
	result, err := Build(context.Background(), params, docs)
	require.NoError(t, err)
	require.Equal(t, 2, result.NumPassages)

	families, err := params.Metrics.Registry.Gather()
	require.NoError(t, err)
	skipped := -1.0
	for _, f := range families {
		if f.GetName() == "leann_passages_skipped_total" {
			skipped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	require.Equal(t, 1.0, skipped)
}

func TestBuildFingerprintStableAcrossIngestOrder(t *testing.T) {
	docsA := []Document{{ID: "a", Text: "alpha"}, {ID: "b", Text: "beta"}}
	docsB := []Document{{ID: "b", Text: "beta"}, {ID: "a", Text: "alpha"}}

	dirA, dirB := t.TempDir(), t.TempDir()
	providerA := embedtest.New("mock", 3)
	providerB := embedtest.New("mock", 3)

	resA, err := Build(context.Background(), testParams(dirA, providerA), docsA)
	require.NoError(t, err)
	resB, err := Build(context.Background(), testParams(dirB, providerB), docsB)
	require.NoError(t, err)

	require.Equal(t, resA.Manifest.BuildFingerprint, resB.Manifest.BuildFingerprint)
}

func TestBuildRecomputeModeSkipsEmbeddingBlob(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 3)
	params := testParams(dir, provider)
	params.Recompute = true

	_, err := Build(context.Background(), params, []Document{{ID: "a", Text: "alpha"}})
	require.NoError(t, err)

	_, err = os.Stat(embed.BlobPath(dir, "idx"))
	require.True(t, os.IsNotExist(err))

	m, err := meta.Load(dir)
	require.NoError(t, err)
	require.True(t, m.Recompute)
}

func TestBuildRejectsConcurrentWritersViaLockFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(lockPath(dir), []byte("12345\n"), 0o644))

	provider := embedtest.New("mock", 3)
	_, err := Build(context.Background(), testParams(dir, provider), []Document{{ID: "a", Text: "alpha"}})
	require.Error(t, err)
}

func TestBuildRejectsEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	provider := embedtest.New("mock", 3)
	_, err := Build(context.Background(), testParams(dir, provider), nil)
	require.Error(t, err)
}

func TestGCStaleTempFilesRemovesOldOnly(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.tmp")
	freshPath := filepath.Join(dir, "fresh.tmp")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(freshPath, []byte("x"), 0o644))
	oldTime := time.Now().Add(-2 * staleTempAge)
	require.NoError(t, os.Chtimes(oldPath, oldTime, oldTime))

	gcStaleTempFiles(dir, staleTempAge)

	_, err := os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	require.NoError(t, err)
}
