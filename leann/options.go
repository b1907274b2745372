package leann

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ngmks/leann/internal/embed"
	"github.com/ngmks/leann/internal/filter"
)

// buildConfig accumulates BuildOptions before Build runs.
type buildConfig struct {
	dimension int
	metric    Metric
	backend   Backend

	hnswM              int
	hnswEfConstruction int
	hnswEfSearch       int

	vamanaR     int
	vamanaL     int
	vamanaAlpha float32

	recompute        bool
	compact          bool
	pruneAlpha       float32
	idStrategy       IDStrategy
	strictDuplicates bool

	batchSize int
	workers   int
	retry     embed.RetryPolicy

	logger  zerolog.Logger
	metrics bool
}

func defaultBuildConfig() *buildConfig {
	return &buildConfig{
		metric:             MetricCosine,
		backend:            BackendHNSW,
		hnswM:              16,
		hnswEfConstruction: 200,
		hnswEfSearch:       64,
		vamanaR:            32,
		vamanaL:            64,
		vamanaAlpha:        1.2,
		retry:              embed.DefaultRetryPolicy,
		logger:             zerolog.Nop(),
	}
}

// BuildOption configures a Build call.
type BuildOption func(*buildConfig) error

// WithDimension sets the embedding dimension every document's vector
// must match.
func WithDimension(dim int) BuildOption {
	return func(c *buildConfig) error {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
		}
		c.dimension = dim
		return nil
	}
}

// WithMetric sets the distance metric recorded in the manifest and used
// for all distance computations.
func WithMetric(metric Metric) BuildOption {
	return func(c *buildConfig) error {
		c.metric = metric
		return nil
	}
}

// WithBackend selects the ANN graph algorithm.
func WithBackend(backend Backend) BuildOption {
	return func(c *buildConfig) error {
		c.backend = backend
		return nil
	}
}

// WithHNSW configures HNSW construction parameters. efSearch is recorded
// in the manifest only; Search does not read it back, and uses a beam
// width of max(k, WithEfSearch value).
func WithHNSW(m, efConstruction, efSearch int) BuildOption {
	return func(c *buildConfig) error {
		if m <= 0 || efConstruction <= 0 || efSearch <= 0 {
			return fmt.Errorf("%w: HNSW parameters must be positive", ErrInvalidInput)
		}
		c.backend = BackendHNSW
		c.hnswM, c.hnswEfConstruction, c.hnswEfSearch = m, efConstruction, efSearch
		return nil
	}
}

// WithVamana configures Vamana/DiskANN-style construction parameters.
func WithVamana(r, l int, alpha float32) BuildOption {
	return func(c *buildConfig) error {
		if r <= 0 || l <= 0 || alpha <= 0 {
			return fmt.Errorf("%w: Vamana parameters must be positive", ErrInvalidInput)
		}
		c.backend = BackendVamana
		c.vamanaR, c.vamanaL, c.vamanaAlpha = r, l, alpha
		return nil
	}
}

// WithRecompute selects "recompute" mode: vectors are never persisted,
// only regenerated from passage text on demand at search time.
func WithRecompute() BuildOption {
	return func(c *buildConfig) error {
		c.recompute = true
		return nil
	}
}

// WithCompact enables post-build BFS compaction, reordering dense node
// indices so neighbors visited together during search sit near each
// other on disk.
func WithCompact() BuildOption {
	return func(c *buildConfig) error {
		c.compact = true
		return nil
	}
}

// WithPrune enables global occlusion-based post-build edge pruning with
// the given redundancy threshold (values in (0,1] are typical; higher
// prunes more aggressively).
func WithPrune(threshold float32) BuildOption {
	return func(c *buildConfig) error {
		if threshold <= 0 {
			return fmt.Errorf("%w: prune threshold must be positive", ErrInvalidInput)
		}
		c.pruneAlpha = threshold
		return nil
	}
}

// WithIDStrategy selects how documents without a caller-supplied id are
// assigned one.
func WithIDStrategy(strategy IDStrategy) BuildOption {
	return func(c *buildConfig) error {
		c.idStrategy = strategy
		return nil
	}
}

// WithStrictDuplicates aborts the build with KindInvalidInput the moment
// a duplicate passage id is ingested, instead of the default policy of
// skipping the duplicate and continuing (§7 DuplicateId).
func WithStrictDuplicates() BuildOption {
	return func(c *buildConfig) error {
		c.strictDuplicates = true
		return nil
	}
}

// WithBatchSize sets the embedding worker pool's batch size.
func WithBatchSize(n int) BuildOption {
	return func(c *buildConfig) error {
		if n <= 0 {
			return fmt.Errorf("%w: batch size must be positive", ErrInvalidInput)
		}
		c.batchSize = n
		return nil
	}
}

// WithWorkers sets the embedding worker pool's concurrency.
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) error {
		if n <= 0 {
			return fmt.Errorf("%w: worker count must be positive", ErrInvalidInput)
		}
		c.workers = n
		return nil
	}
}

// WithRetryPolicy overrides the default provider retry policy (3
// attempts, 100ms base delay doubling, 2s cap).
func WithRetryPolicy(policy embed.RetryPolicy) BuildOption {
	return func(c *buildConfig) error {
		c.retry = policy
		return nil
	}
}

// WithBuildLogger attaches a structured logger to the build.
func WithBuildLogger(log zerolog.Logger) BuildOption {
	return func(c *buildConfig) error {
		c.logger = log
		return nil
	}
}

// WithBuildMetrics enables Prometheus instrumentation for the build.
func WithBuildMetrics() BuildOption {
	return func(c *buildConfig) error {
		c.metrics = true
		return nil
	}
}

// searchConfig accumulates SearchOptions before Search runs.
type searchConfig struct {
	ef                  int
	filter              filter.Filter
	hybridAlpha         float64
	sortBy              SortBy
	timeout             time.Duration
	bruteForceThreshold float64

	logger  zerolog.Logger
	metrics bool
}

func defaultSearchConfig() *searchConfig {
	return &searchConfig{
		sortBy: SortByRelevance,
		logger: zerolog.Nop(),
	}
}

// SearchOption configures a Search call.
type SearchOption func(*searchConfig) error

// WithEfSearch overrides the beam width used for this query.
func WithEfSearch(ef int) SearchOption {
	return func(c *searchConfig) error {
		if ef <= 0 {
			return fmt.Errorf("%w: ef must be positive", ErrInvalidInput)
		}
		c.ef = ef
		return nil
	}
}

// WithAlpha enables hybrid rescoring, blending BM25 (weighted alpha)
// with vector distance (weighted 1-alpha). alpha == 0 disables hybrid
// rescoring entirely.
func WithAlpha(alpha float64) SearchOption {
	return func(c *searchConfig) error {
		if alpha < 0 || alpha > 1 {
			return fmt.Errorf("%w: alpha must be in [0,1]", ErrInvalidInput)
		}
		c.hybridAlpha = alpha
		return nil
	}
}

// WithFilter attaches a metadata/time predicate to the query.
func WithFilter(f filter.Filter) SearchOption {
	return func(c *searchConfig) error {
		if f != nil {
			if err := f.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}
		c.filter = f
		return nil
	}
}

// WithDateRange restricts results to passages whose "timestamp" metadata
// falls within [from, to], the Search API's date_from/date_to options
// (§6). Composes with an existing WithFilter via AND rather than
// overwriting it.
func WithDateRange(from, to time.Time) SearchOption {
	return func(c *searchConfig) error {
		dateFilter := filter.NewTimeRangeFilter("timestamp", from, to)
		if err := dateFilter.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if c.filter != nil {
			c.filter = filter.NewAndFilter(c.filter, dateFilter)
		} else {
			c.filter = dateFilter
		}
		return nil
	}
}

// WithSortBy overrides the default relevance ordering with a date sort.
func WithSortBy(sortBy SortBy) SearchOption {
	return func(c *searchConfig) error {
		c.sortBy = sortBy
		return nil
	}
}

// WithTimeout bounds how long a single Search call may run. When the
// deadline expires the call returns a KindDeadlineExceeded error and no
// results; the candidates gathered so far are not returned.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) error {
		c.timeout = d
		return nil
	}
}

// WithBruteForceThreshold overrides the selectivity threshold below
// which a filtered search brute-force scans instead of traversing the
// graph with a materialized accept set.
func WithBruteForceThreshold(threshold float64) SearchOption {
	return func(c *searchConfig) error {
		c.bruteForceThreshold = threshold
		return nil
	}
}

// WithSearchLogger attaches a structured logger to the searcher.
func WithSearchLogger(log zerolog.Logger) SearchOption {
	return func(c *searchConfig) error {
		c.logger = log
		return nil
	}
}

// WithSearchMetrics enables Prometheus instrumentation for the searcher.
func WithSearchMetrics() SearchOption {
	return func(c *searchConfig) error {
		c.metrics = true
		return nil
	}
}
