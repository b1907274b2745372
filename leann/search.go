package leann

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/graph"
	"github.com/ngmks/leann/internal/graph/hnsw"
	"github.com/ngmks/leann/internal/graph/vamana"
	"github.com/ngmks/leann/internal/lexical"
	"github.com/ngmks/leann/internal/meta"
	"github.com/ngmks/leann/internal/obs"
	"github.com/ngmks/leann/internal/passage"
	"github.com/ngmks/leann/internal/search"
	"github.com/ngmks/leann/internal/util"
)

const defaultCacheSize = 4096

// Searcher answers queries against a previously built index directory.
// It holds open, read-only handles (a memory-mapped passage store, a
// loaded graph, optionally a memory-mapped embedding blob) until Close
// is called.
type Searcher struct {
	store   *passage.Store
	blob    *embed.Blob // non-nil when the index persisted an embedding blob
	inner   *search.Searcher
	metrics *obs.Metrics
	log     zerolog.Logger
}

// NewSearcher opens dir's manifest, passage store, and graph, wiring
// provider in for queries. provider is required for every index: it
// always embeds the query text, and for a recompute-mode index it also
// embeds candidate passages (an index with a persisted embedding blob
// reads candidate vectors from the blob). A model-id mismatch between provider and
// the manifest is a KindModelMismatch error — continuing would silently
// search with vectors from a different embedding space.
func NewSearcher(ctx context.Context, dir string, provider EmbeddingProvider, opts ...SearchOption) (*Searcher, error) {
	cfg := defaultSearchConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	m, err := meta.Load(dir)
	if err != nil {
		return nil, Wrap(KindCorrupt, "load manifest", err)
	}
	if provider != nil && provider.ModelID() != m.ModelID {
		return nil, Wrap(KindModelMismatch, fmt.Sprintf("provider model %q does not match index model %q", provider.ModelID(), m.ModelID), nil)
	}

	store, err := passage.Open(dir, m.Files.Passages)
	if err != nil {
		return nil, Wrap(KindCorrupt, "open passage store", err)
	}

	dist, err := util.GetDistanceFunc(metricFromString(m.Metric), m.Normalized)
	if err != nil {
		store.Close()
		return nil, Wrap(KindCorrupt, "resolve distance metric", err)
	}

	var backend graph.Backend
	switch m.Backend {
	case string(BackendVamana):
		g, err := vamana.Open(dir, m.Files.Graph, vamana.Config{})
		if err != nil {
			store.Close()
			return nil, Wrap(KindCorrupt, "open graph", err)
		}
		backend = g
	default:
		hnswCfg := hnsw.Config{}
		if m.HNSW != nil {
			hnswCfg.M = m.HNSW.M
			hnswCfg.EfConstruction = m.HNSW.EfConstruction
		}
		g, err := hnsw.Open(dir, m.Files.Graph, hnswCfg)
		if err != nil {
			store.Close()
			return nil, Wrap(KindCorrupt, "open graph", err)
		}
		backend = g
	}

	var blob *embed.Blob
	if m.Files.Embeddings != "" {
		blob, err = embed.OpenBlob(dir, m.Files.Embeddings)
		if err != nil {
			store.Close()
			return nil, Wrap(KindCorrupt, "open embedding blob", err)
		}
	}

	var metrics *obs.Metrics
	if cfg.metrics {
		metrics = obs.NewMetrics()
	}

	var lex *lexical.Index
	if lexical.Exists(dir, m.Files.Passages) {
		if loaded, lerr := lexical.Load(dir, m.Files.Passages); lerr == nil && loaded.N == store.N() {
			lex = loaded
		}
	}

	inner := &search.Searcher{
		Passages: store,
		Backend:  backend,
		Dist:     graph.DistanceFunc(dist),
		Provider: provider,
		Cache:    embed.NewCache(defaultCacheSize),
		Retry:    DefaultRetryPolicy,
		Lexical:  lex,
	}
	if metrics != nil {
		inner.OnRetry = func(attempt int, err error) { metrics.IncProviderRetry() }
	}
	if blob != nil {
		inner.Expander = blob.Expander()
	}

	return &Searcher{
		store:   store,
		blob:    blob,
		inner:   inner,
		metrics: metrics,
		log:     obs.Component(cfg.logger, "search"),
	}, nil
}

// Search answers one query, applying the configured options as
// per-query overrides.
func (s *Searcher) Search(ctx context.Context, queryText string, k int, opts ...SearchOption) (*SearchResponse, error) {
	cfg := defaultSearchConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.inner.Search(ctx, search.Params{
		QueryText:           queryText,
		K:                   k,
		Ef:                  cfg.ef,
		Filter:              cfg.filter,
		HybridAlpha:         cfg.hybridAlpha,
		SortByDateDesc:      cfg.sortBy == SortByDateDesc,
		SortByDateAsc:       cfg.sortBy == SortByDateAsc,
		BruteForceThreshold: cfg.bruteForceThreshold,
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if ctx.Err() != nil {
			s.metrics.ObserveSearch(elapsed, err, false)
			return nil, Wrap(KindDeadlineExceeded, "search deadline exceeded", err)
		}
		s.metrics.ObserveSearch(elapsed, err, false)
		return nil, classifySearchError(err)
	}
	s.metrics.ObserveSearch(elapsed, nil, resp.Partial)

	results := make([]Result, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = Result{
			Passage:   Passage{ID: r.Passage.ID, Text: r.Passage.Text, Metadata: r.Passage.Metadata},
			Distance:  r.Distance,
			Score:     r.Score,
			NodeIndex: r.Node,
		}
	}
	return &SearchResponse{Results: results, Partial: resp.Partial, Reason: resp.Reason}, nil
}

// Close releases the searcher's open file handles (memory-mapped
// passage store and, if one was opened, the embedding blob).
func (s *Searcher) Close() error {
	if s.blob != nil {
		s.blob.Close()
	}
	return s.store.Close()
}

func metricFromString(s string) util.Metric {
	if s == string(MetricL2) {
		return util.L2Metric
	}
	return util.CosineMetric
}

func classifySearchError(err error) error {
	var embedErr *embed.Error
	if errors.As(err, &embedErr) {
		switch embedErr.Mode {
		case embed.FailureTransient:
			return Wrap(KindProviderTransient, "embedding provider failed", err)
		case embed.FailurePermanent:
			return Wrap(KindProviderPermanent, "embedding provider failed", err)
		}
	}
	return Wrap(KindInvalidInput, "search failed", err)
}
