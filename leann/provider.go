package leann

import "github.com/ngmks/leann/internal/embed"

// EmbeddingProvider is the engine's sole collaborator for turning text
// into vectors. Implementations are expected to be safe for concurrent
// use, since both the builder's worker pool and a searcher's recompute
// path call Encode concurrently.
type EmbeddingProvider = embed.Provider

// RetryPolicy governs how a failed provider call is retried before the
// engine treats it as exhausted (build: abort; search: degrade to a
// partial result).
type RetryPolicy = embed.RetryPolicy

// DefaultRetryPolicy is 3 attempts, 100ms base delay doubling, capped
// at 2s.
var DefaultRetryPolicy = embed.DefaultRetryPolicy
