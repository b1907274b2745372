package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2)
	c.Put(1, []float32{1})
	c.Put(2, []float32{2})

	_, ok := c.Get(1) // touch 1, making 2 the LRU victim
	require.True(t, ok)

	c.Put(3, []float32{3})

	_, ok = c.Get(2)
	require.False(t, ok, "2 should have been evicted as least-recently-used")

	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, []float32{1}, v)

	v, ok = c.Get(3)
	require.True(t, ok)
	require.Equal(t, []float32{3}, v)
}

func TestCacheDisabledWhenCapacityZero(t *testing.T) {
	c := NewCache(0)
	c.Put(1, []float32{1})
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestCacheStats(t *testing.T) {
	c := NewCache(4)
	c.Put(1, []float32{1})
	c.Get(1)
	c.Get(2)

	hits, misses := c.Stats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(1), misses)
}

func TestEncodeWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	retries := 0
	encode := func(ctx context.Context) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, &Error{Mode: FailureTransient, Message: "transient"}
		}
		return [][]float32{{1, 2}}, nil
	}

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	vecs, err := EncodeWithRetry(context.Background(), policy, func(int, error) { retries++ }, encode)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 2}}, vecs)
	require.Equal(t, 3, attempts)
	require.Equal(t, 2, retries)
}

func TestEncodeWithRetryStopsOnPermanentFailure(t *testing.T) {
	attempts := 0
	encode := func(ctx context.Context) ([][]float32, error) {
		attempts++
		return nil, &Error{Mode: FailurePermanent, Message: "permanent"}
	}

	_, err := EncodeWithRetry(context.Background(), DefaultRetryPolicy, nil, encode)
	require.Error(t, err)
	require.Equal(t, 1, attempts)

	var pErr *Error
	require.True(t, errors.As(err, &pErr))
	require.Equal(t, FailurePermanent, pErr.Mode)
}

func TestEncodeWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	encode := func(ctx context.Context) ([][]float32, error) {
		attempts++
		return nil, &Error{Mode: FailureTransient, Message: "transient"}
	}

	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := EncodeWithRetry(context.Background(), policy, nil, encode)
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}
