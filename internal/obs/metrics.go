// Package obs carries the engine's ambient observability: Prometheus
// metrics and structured logging. Every method here is safe to call on a
// nil receiver so instrumentation stays strictly opt-in.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. Each Builder/Searcher
// owns its own Metrics backed by a private registry so that creating many
// of them (as tests do) never collides on global registration.
type Metrics struct {
	Registry *prometheus.Registry

	BuildsStarted   prometheus.Counter
	BuildsFailed    prometheus.Counter
	PassagesIngested prometheus.Counter
	PassagesSkipped prometheus.Counter

	SearchQueries      prometheus.Counter
	SearchErrors       prometheus.Counter
	SearchPartial      prometheus.Counter
	SearchLatency      prometheus.Histogram
	RecomputeCacheHits prometheus.Counter
	RecomputeCacheMiss prometheus.Counter
	ProviderRetries    prometheus.Counter
}

// NewMetrics creates a Metrics instance registered against a fresh,
// private prometheus.Registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		BuildsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_builds_started_total",
			Help: "Total index builds started",
		}),
		BuildsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_builds_failed_total",
			Help: "Total index builds that aborted",
		}),
		PassagesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_passages_ingested_total",
			Help: "Total passages appended to the passage store",
		}),
		PassagesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_passages_skipped_total",
			Help: "Total passages skipped as duplicate ids during idempotent rebuild",
		}),
		SearchQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_search_queries_total",
			Help: "Total search queries served",
		}),
		SearchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_search_errors_total",
			Help: "Total search queries that returned an error",
		}),
		SearchPartial: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_search_partial_total",
			Help: "Total search queries that returned a partial result",
		}),
		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leann_search_latency_seconds",
			Help:    "Search request latency",
			Buckets: prometheus.DefBuckets,
		}),
		RecomputeCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_recompute_cache_hits_total",
			Help: "Total recompute-cache hits during candidate expansion",
		}),
		RecomputeCacheMiss: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_recompute_cache_misses_total",
			Help: "Total recompute-cache misses during candidate expansion",
		}),
		ProviderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "leann_provider_retries_total",
			Help: "Total embedding provider retry attempts",
		}),
	}
}

func (m *Metrics) incBuildsStarted() {
	if m != nil {
		m.BuildsStarted.Inc()
	}
}

func (m *Metrics) incBuildsFailed() {
	if m != nil {
		m.BuildsFailed.Inc()
	}
}

// IncPassagesIngested records a successfully appended passage.
func (m *Metrics) IncPassagesIngested() {
	if m != nil {
		m.PassagesIngested.Inc()
	}
}

// IncPassagesSkipped records a duplicate-id passage skipped during ingest.
func (m *Metrics) IncPassagesSkipped() {
	if m != nil {
		m.PassagesSkipped.Inc()
	}
}

// IncBuildsStarted records the start of a build.
func (m *Metrics) IncBuildsStarted() { m.incBuildsStarted() }

// IncBuildsFailed records a build that aborted.
func (m *Metrics) IncBuildsFailed() { m.incBuildsFailed() }

// ObserveSearch records a completed search: latency, and whether it
// errored or was partial.
func (m *Metrics) ObserveSearch(seconds float64, err error, partial bool) {
	if m == nil {
		return
	}
	m.SearchQueries.Inc()
	m.SearchLatency.Observe(seconds)
	if err != nil {
		m.SearchErrors.Inc()
	}
	if partial {
		m.SearchPartial.Inc()
	}
}

// IncRecomputeCacheHit records a recompute-cache hit.
func (m *Metrics) IncRecomputeCacheHit() {
	if m != nil {
		m.RecomputeCacheHits.Inc()
	}
}

// IncRecomputeCacheMiss records a recompute-cache miss.
func (m *Metrics) IncRecomputeCacheMiss() {
	if m != nil {
		m.RecomputeCacheMiss.Inc()
	}
}

// IncProviderRetry records one embedding-provider retry attempt.
func (m *Metrics) IncProviderRetry() {
	if m != nil {
		m.ProviderRetries.Inc()
	}
}
