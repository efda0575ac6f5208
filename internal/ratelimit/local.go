package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultRatePerSec = 10

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter enforces a minimum spacing between calls per key in a
// single process. A rate of 10/sec yields the 100ms inter-item delay the
// remote lookup API tolerates.
type LocalRateLimiter struct {
	spacing time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	next map[string]time.Time
}

func NewLocalRateLimiter(ratePerSec int) *LocalRateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}

	return &LocalRateLimiter{
		spacing: time.Second / time.Duration(ratePerSec),
		now:     time.Now,
		sleep:   sleepWithContext,
		next:    make(map[string]time.Time),
	}
}

func (l *LocalRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if next, ok := l.next[normalized]; ok && now.Before(next) {
		return false, nil
	}
	l.next[normalized] = now.Add(l.spacing)
	return true, nil
}

// Wait reserves the next slot for key and sleeps until it opens. Distinct
// keys never delay each other.
func (l *LocalRateLimiter) Wait(ctx context.Context, key string) error {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.mu.Lock()
	now := l.now()
	next, ok := l.next[normalized]
	if !ok || next.Before(now) {
		next = now
	}
	l.next[normalized] = next.Add(l.spacing)
	l.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		return l.sleep(ctx, wait)
	}
	return nil
}

// Forget drops pacing state for a finished session.
func (l *LocalRateLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.next, strings.TrimSpace(key))
	l.mu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
