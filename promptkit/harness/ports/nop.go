package harnessports

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoFetcher is returned by NopFetcher.
var ErrNoFetcher = errors.New("no fetcher configured")

// NopFetcher resolves nothing.
type NopFetcher struct{}

func (NopFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	return nil, ErrNoFetcher
}

// NopCache stores nothing; every Get misses.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (NopCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (NopCache) Delete(ctx context.Context, key string) error { return nil }

// NopRateLimiter admits every call immediately.
type NopRateLimiter struct{}

func (NopRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// NopTracer drops spans and events.
type NopTracer struct{}

func (NopTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (NopTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// NopStore keeps nothing; every load misses.
type NopStore struct{}

func (NopStore) SaveSession(ctx context.Context, id string, snapshot []byte) error { return nil }

func (NopStore) LoadSession(ctx context.Context, id string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (NopStore) DeleteSession(ctx context.Context, id string) error { return nil }

func (NopStore) ListSessions(ctx context.Context) ([]SessionInfo, error) { return nil, nil }

var (
	_ Fetcher      = NopFetcher{}
	_ Cache        = NopCache{}
	_ RateLimiter  = NopRateLimiter{}
	_ Tracer       = NopTracer{}
	_ SessionStore = NopStore{}
)
