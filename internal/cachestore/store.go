// Package cachestore is a TTL + stale-while-revalidate key/value cache.
//
// Entries are fresh until storedAt+ttl, stale-servable until storedAt+ttl+swr,
// and misses after that. The store writes through a pluggable backend: a
// shared SQLite store when one is configured and healthy, an in-process map
// otherwise. Backend selection happens once at construction; a backend that
// turns unhealthy mid-run degrades the store to memory-only for the rest of
// the process lifetime.
package cachestore

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/farewatch/farewatch/internal/observ"
)

// State classifies a Get result against the freshness rule.
type State int

const (
	StateMiss State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "miss"
	}
}

// Entry is one cached value with its freshness metadata.
type Entry struct {
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
	SWR      time.Duration
}

// Backend is the storage capability the cache writes through.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Store layers freshness classification over a backend.
type Store struct {
	backend  Backend
	fallback *MemoryBackend
	degraded atomic.Bool
	logger   *log.Logger
	now      func() time.Time
}

// New probes shared once and selects it as the backend if healthy. A nil or
// unhealthy shared store selects the in-process fallback immediately.
func New(shared Backend, logger *log.Logger) *Store {
	s := &Store{
		fallback: NewMemoryBackend(),
		logger:   logger,
		now:      time.Now,
	}
	if shared == nil {
		s.backend = s.fallback
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := shared.HealthCheck(ctx); err != nil {
		logger.Printf("shared cache store unhealthy, using in-process cache: %v", err)
		observ.Warn("cache_store_probe_failed", map[string]any{"error": err.Error()})
		s.backend = s.fallback
		s.degraded.Store(true)
		observ.SetGauge("shared_store_degraded", 1, nil)
		return s
	}
	s.backend = shared
	return s
}

// Get returns the cached value and its freshness state. Backend errors are
// treated as a miss and degrade the store to the in-process fallback.
func (s *Store) Get(ctx context.Context, key string) ([]byte, State) {
	e, ok, err := s.current().Get(ctx, key)
	if err != nil {
		s.degrade("get", err)
		e, ok, _ = s.fallback.Get(ctx, key)
	}
	if !ok || e == nil {
		observ.IncCounter("cache_miss_total", nil)
		return nil, StateMiss
	}

	age := s.now().Sub(e.StoredAt)
	switch {
	case age < e.TTL:
		observ.IncCounter("cache_hit_total", map[string]string{"state": "fresh"})
		return e.Value, StateFresh
	case age < e.TTL+e.SWR:
		observ.IncCounter("cache_hit_total", map[string]string{"state": "stale"})
		observ.IncCounter("cache_stale_read_total", nil)
		return e.Value, StateStale
	default:
		// Expired past the stale window; treat as miss.
		observ.IncCounter("cache_miss_total", nil)
		return nil, StateMiss
	}
}

// Set overwrites unconditionally. Cached values are idempotent re-derivations
// of the same upstream fact, so last-writer-wins is acceptable.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl, swr time.Duration) {
	e := &Entry{Value: value, StoredAt: s.now(), TTL: ttl, SWR: swr}
	if err := s.current().Set(ctx, key, e); err != nil {
		s.degrade("set", err)
		_ = s.fallback.Set(ctx, key, e)
	}
	observ.IncCounter("cache_set_total", nil)
}

// Cleanup evicts fully expired entries from the in-process store and reports
// how many were removed. The shared SQLite backend has its own purge; this
// covers the fallback, which is also the primary backend when the store runs
// memory-only or has degraded.
func (s *Store) Cleanup() int {
	return s.fallback.Cleanup()
}

// Degraded reports whether the store has fallen back to memory-only.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

func (s *Store) current() Backend {
	if s.degraded.Load() {
		return s.fallback
	}
	return s.backend
}

func (s *Store) degrade(op string, err error) {
	if s.degraded.Swap(true) {
		return
	}
	s.logger.Printf("shared cache store failed on %s, degrading to in-process cache: %v", op, err)
	observ.Warn("cache_store_degraded", map[string]any{"op": op, "error": err.Error()})
	observ.SetGauge("shared_store_degraded", 1, nil)
}
