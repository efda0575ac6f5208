package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolProcessesEveryIndex(t *testing.T) {
	t.Parallel()

	const count = 200

	var mu sync.Mutex
	seen := make(map[int]bool, count)

	pool := NewPool(8, nil)
	err := pool.Run(context.Background(), count, func(ctx context.Context, i int) {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) != count {
		t.Fatalf("processed %d indexes, want %d", len(seen), count)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 4

	var inFlight, peak int64
	pool := NewPool(limit, nil)

	err := pool.Run(context.Background(), 100, func(ctx context.Context, i int) {
		current := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if current <= old || atomic.CompareAndSwapInt64(&peak, old, current) {
				break
			}
		}
		atomic.AddInt64(&inFlight, -1)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := atomic.LoadInt64(&peak); got > limit {
		t.Fatalf("peak concurrency = %d, want <= %d", got, limit)
	}
}

func TestPoolSurvivesPanickingWork(t *testing.T) {
	t.Parallel()

	var processed int64
	pool := NewPool(4, nil)

	err := pool.Run(context.Background(), 50, func(ctx context.Context, i int) {
		if i%10 == 0 {
			panic("boom")
		}
		atomic.AddInt64(&processed, 1)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := atomic.LoadInt64(&processed); got != 45 {
		t.Fatalf("processed = %d, want 45 non-panicking items", got)
	}
}

func TestPoolStopsEnqueuingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var processed int64
	pool := NewPool(1, nil)

	err := pool.Run(ctx, 10_000, func(ctx context.Context, i int) {
		if atomic.AddInt64(&processed, 1) == 5 {
			cancel()
		}
	})
	if err == nil {
		t.Fatal("Run() should return the context error when not drained")
	}

	if got := atomic.LoadInt64(&processed); got >= 10_000 {
		t.Fatalf("processed = %d, want early stop", got)
	}
}
