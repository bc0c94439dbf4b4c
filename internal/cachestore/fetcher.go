package cachestore

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc performs the metered upstream call on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Fetcher coalesces concurrent misses for the same key into one upstream
// call and writes the result through to the store. All waiters receive the
// single call's result.
type Fetcher struct {
	store *Store
	sf    singleflight.Group
}

func NewFetcher(store *Store) *Fetcher {
	return &Fetcher{store: store}
}

// Fetch runs fn under single-flight for key, caches a successful result with
// the given ttl/swr, and returns it. Errors pass through uncached so the next
// caller retries.
func (f *Fetcher) Fetch(ctx context.Context, key string, ttl, swr time.Duration, fn FetchFunc) ([]byte, error) {
	v, err, _ := f.sf.Do(key, func() (any, error) {
		b, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		f.store.Set(ctx, key, b, ttl, swr)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
