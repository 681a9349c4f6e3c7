package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/promptkit/promptkit/harness/ports"
)

// ErrRateLimitExceeded is returned when a host has no tokens left.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// TokenBucket throttles media fetches with one bucket per host.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int           // max tokens per bucket
	refillRate time.Duration // time per refilled token
	now        func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a limiter. Tokens consumed by Acquire come back
// only through refill; the release func is a no-op.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// Acquire takes a token from the bucket for key.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	if n := int(now.Sub(b.lastRefill) / tb.refillRate); n > 0 {
		b.tokens = min(b.tokens+n, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(n) * tb.refillRate)
	}

	if b.tokens <= 0 {
		return nil, ErrRateLimitExceeded
	}
	b.tokens--
	return func() {}, nil
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
