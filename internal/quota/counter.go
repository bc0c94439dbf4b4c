// Package quota enforces per-window request budgets for metered upstream
// providers. A tracker owns one or more named windows (daily, minute) per
// scope and counts acquires through a Counter capability: a shared SQLite
// counter when configured and healthy, a local in-process counter otherwise.
package quota

import (
	"context"
	"sync"
	"time"
)

// Counter is the atomic storage capability behind the tracker. The key
// encodes scope, window name and window start, so a window rollover is simply
// a fresh key starting at zero; expired keys are garbage, not state.
type Counter interface {
	// Increment applies the acquire rule atomically: below limit the count
	// is incremented and allowed is true; at or above limit the count is
	// left untouched and allowed is false.
	Increment(ctx context.Context, key string, limit int64, expiry time.Duration) (count int64, allowed bool, err error)
	// Count reads the current count without modifying it.
	Count(ctx context.Context, key string) (int64, error)
	// Reset clears a key.
	Reset(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type localEntry struct {
	count     int64
	expiresAt time.Time
}

// LocalCounter is the in-process implementation. It is correct for a single
// process; cross-instance quota sharing needs the SQLite counter.
type LocalCounter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	now     func() time.Time
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{
		entries: make(map[string]*localEntry),
		now:     time.Now,
	}
}

func (c *LocalCounter) Increment(_ context.Context, key string, limit int64, expiry time.Duration) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gc()

	e, ok := c.entries[key]
	if !ok {
		e = &localEntry{expiresAt: c.now().Add(expiry)}
		c.entries[key] = e
	}
	if e.count >= limit {
		return e.count, false, nil
	}
	e.count++
	return e.count, true, nil
}

func (c *LocalCounter) Count(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, nil
	}
	return e.count, nil
}

func (c *LocalCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *LocalCounter) HealthCheck(context.Context) error { return nil }

func (c *LocalCounter) Close() error { return nil }

// gc drops expired window keys. Caller holds c.mu.
func (c *LocalCounter) gc() {
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
