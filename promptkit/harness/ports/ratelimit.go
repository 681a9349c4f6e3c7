package harnessports

import "context"

// RateLimiter throttles outbound fetches per key (typically the URL host).
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
