package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// enqueueBatchCeiling bounds outstanding goroutines: after this many are
// in flight the enqueue loop waits for the whole batch, keeping peak
// memory independent of input size.
const enqueueBatchCeiling = 500

// Pool caps simultaneous network verifications. Queued items wait for a
// free slot; a panic inside one item never aborts the pool.
type Pool struct {
	sem          *semaphore.Weighted
	batchCeiling int
	logger       *zap.Logger
}

func NewPool(maxConcurrent int, logger *zap.Logger) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		batchCeiling: enqueueBatchCeiling,
		logger:       logger,
	}
}

// Run dispatches work for indexes [0, count). It stops enqueuing once ctx
// is cancelled, waits for everything already dispatched, and returns the
// context error if the input was not drained.
func (p *Pool) Run(ctx context.Context, count int, work func(ctx context.Context, index int)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var wg sync.WaitGroup
	pending := 0

	for i := 0; i < count; i++ {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		pending++
		go func(index int) {
			defer wg.Done()
			defer p.sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("work item panicked",
						zap.Int("index", index),
						zap.Any("panic", r),
					)
				}
			}()

			work(ctx, index)
		}(i)

		if pending >= p.batchCeiling {
			wg.Wait()
			pending = 0
		}
	}

	wg.Wait()
	return ctx.Err()
}
