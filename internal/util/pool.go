package util

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBatched fans batches of work out across a bounded worker pool and
// waits for all of them (§4.6 step 2 / §5's "fixed-size worker pool for
// embedding batches"). fn is invoked once per batch index in [0, batches);
// the first error cancels ctx for the remaining in-flight workers and is
// returned once all workers have exited.
func RunBatched(ctx context.Context, workers, batches int, fn func(ctx context.Context, batch int) error) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for batch := 0; batch < batches; batch++ {
		batch := batch
		g.Go(func() error {
			return fn(gctx, batch)
		})
	}
	return g.Wait()
}
