// Package embed defines the embedding provider seam: the callback the
// engine uses to turn passage or query text into vectors, a bounded LRU
// cache in front of it for recompute mode, and retry/backoff policy for
// its transient failures (§4.3).
package embed

import "context"

// Kind distinguishes a query embedding from a document (passage)
// embedding, since some providers apply a different instruction prefix
// or prompt template to each (§4.6, query_prompt_template /
// document_prompt_template).
type Kind int

const (
	KindDocument Kind = iota
	KindQuery
)

// FailureMode classifies why a Provider call failed, so callers can
// decide whether to retry, demote to a partial result, or abort (§7).
type FailureMode int

const (
	// FailureNone indicates no failure occurred.
	FailureNone FailureMode = iota
	// FailureTransient is a retryable failure (timeout, rate limit,
	// transient network error).
	FailureTransient
	// FailurePermanent is not worth retrying (auth failure, malformed
	// request).
	FailurePermanent
)

// Error wraps a Provider failure with its FailureMode.
type Error struct {
	Mode    FailureMode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Provider turns text into vectors. Implementations are supplied by the
// caller; the engine only depends on this interface (§4.3, "the engine
// never talks to a model API directly").
type Provider interface {
	// ModelID identifies the embedding model, used for the manifest's
	// model_id field and build fingerprint.
	ModelID() string
	// Dimension is the fixed output vector width.
	Dimension() int
	// Normalized reports whether vectors are already unit-normalized
	// (letting the engine compute cosine distance as 1 − dot product).
	Normalized() bool
	// Encode embeds a batch of texts. The returned slice has the same
	// length and order as texts. A failure applies to the whole batch;
	// callers needing partial-batch granularity should call with smaller
	// batches.
	Encode(ctx context.Context, texts []string, kind Kind) ([][]float32, error)
}
