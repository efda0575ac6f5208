package ratelimit

import "context"

// RateLimiter paces external lookup traffic per session key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
