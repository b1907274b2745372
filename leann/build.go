package leann

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngmks/leann/internal/build"
	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/graph"
	"github.com/ngmks/leann/internal/graph/hnsw"
	"github.com/ngmks/leann/internal/graph/vamana"
	"github.com/ngmks/leann/internal/meta"
	"github.com/ngmks/leann/internal/obs"
	"github.com/ngmks/leann/internal/util"
)

// BuildResult summarizes a completed Build call.
type BuildResult struct {
	Dir         string
	NumPassages int
}

// Build assembles a passage store and ANN graph from documents,
// writing every artifact into dir (§4.6). Each call builds the index
// from documents alone: an index already in dir is overwritten, not
// merged with. A document whose id repeats an earlier one in documents
// is skipped (or aborts the build under WithStrictDuplicates).
func Build(ctx context.Context, dir string, provider EmbeddingProvider, documents []Document, opts ...BuildOption) (*BuildResult, error) {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if len(documents) == 0 {
		return nil, ErrEmptyCorpus
	}
	if cfg.dimension > 0 && provider.Dimension() != cfg.dimension {
		return nil, Wrap(KindModelMismatch, fmt.Sprintf("provider dimension %d does not match configured dimension %d", provider.Dimension(), cfg.dimension), nil)
	}

	dist, err := util.GetDistanceFunc(metricToUtil(cfg.metric), provider.Normalized())
	if err != nil {
		return nil, Wrap(KindInvalidInput, "resolve distance metric", err)
	}

	var backend graph.Backend
	var hnswParams *meta.HNSWParams
	var vamanaParams *meta.VamanaParams
	switch cfg.backend {
	case BackendVamana:
		backend = vamana.New(vamana.Config{R: cfg.vamanaR, L: cfg.vamanaL, Alpha: cfg.vamanaAlpha})
		vamanaParams = &meta.VamanaParams{R: cfg.vamanaR, L: cfg.vamanaL, Alpha: cfg.vamanaAlpha}
	default:
		backend = hnsw.New(hnsw.Config{M: cfg.hnswM, EfConstruction: cfg.hnswEfConstruction})
		hnswParams = &meta.HNSWParams{M: cfg.hnswM, EfConstruction: cfg.hnswEfConstruction, EfSearch: cfg.hnswEfSearch}
	}

	var metrics *obs.Metrics
	if cfg.metrics {
		metrics = obs.NewMetrics()
	}

	docs := make([]build.Document, len(documents))
	for i, d := range documents {
		docs[i] = build.Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata}
	}

	params := build.Params{
		Dir:          dir,
		IndexName:    "index",
		Backend:      backend,
		BackendName:  string(cfg.backend),
		Provider:     provider,
		Metric:       string(cfg.metric),
		Dist:         graph.DistanceFunc(dist),
		IDStrategy:       build.IDStrategy(cfg.idStrategy),
		Recompute:        cfg.recompute,
		Compact:          cfg.compact,
		PruneAlpha:       cfg.pruneAlpha,
		StrictDuplicates: cfg.strictDuplicates,
		BatchSize:        cfg.batchSize,
		Workers:      cfg.workers,
		Retry:        cfg.retry,
		HNSWParams:   hnswParams,
		VamanaParams: vamanaParams,
		Metrics:      metrics,
		Log:          cfg.logger,
	}

	result, err := build.Build(ctx, params, docs)
	if err != nil {
		return nil, classifyBuildError(err)
	}
	return &BuildResult{Dir: dir, NumPassages: result.NumPassages}, nil
}

func metricToUtil(m Metric) util.Metric {
	if m == MetricL2 {
		return util.L2Metric
	}
	return util.CosineMetric
}

// classifyBuildError maps an internal build error to the engine's
// Kind taxonomy so callers can branch on errors.Is / KindOf without
// reaching past the public package.
func classifyBuildError(err error) error {
	var embedErr *embed.Error
	if errors.As(err, &embedErr) {
		switch embedErr.Mode {
		case embed.FailureTransient:
			return Wrap(KindProviderTransient, "embedding provider failed", err)
		case embed.FailurePermanent:
			return Wrap(KindProviderPermanent, "embedding provider failed", err)
		}
	}
	return Wrap(KindInvalidInput, "build failed", err)
}
