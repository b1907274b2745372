package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy governs how many times and how long the engine waits
// before giving up on a transient provider failure (§4.3, §7). The same
// policy serves both call sites: the builder treats exhaustion as an
// aborting error, while the searcher treats it as a reason to return a
// partial result instead.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first, >= 1
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // ceiling on backoff growth
}

// DefaultRetryPolicy matches the engine's documented default: 3 attempts,
// doubling from 100ms, capped at 2s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// OnRetry, if set, is called before each retry sleep with the attempt
// number (1-indexed) that just failed — used to drive the
// ProviderRetries metric without this package depending on internal/obs.
type OnRetry func(attempt int, err error)

// EncodeWithRetry calls encode, retrying on FailureTransient errors per
// policy. A FailurePermanent error, or exhausting MaxAttempts, returns
// the last error unwrapped so callers can inspect its FailureMode.
func EncodeWithRetry(ctx context.Context, policy RetryPolicy, onRetry OnRetry, encode func(ctx context.Context) ([][]float32, error)) ([][]float32, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		vecs, err := encode(ctx)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		var pErr *Error
		if !errors.As(err, &pErr) || pErr.Mode != FailureTransient {
			return nil, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}

	return nil, lastErr
}
