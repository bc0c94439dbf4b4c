package cachestore

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func TestCacheRoundTrip(t *testing.T) {
	s := New(nil, testLogger())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("275.00"), 60*time.Second, 30*time.Second)

	v, state := s.Get(ctx, "k")
	if state != StateFresh {
		t.Fatalf("state = %v, want fresh", state)
	}
	if string(v) != "275.00" {
		t.Errorf("value = %q, want 275.00", v)
	}
}

func TestCacheMissUnknownKey(t *testing.T) {
	s := New(nil, testLogger())
	if _, state := s.Get(context.Background(), "nope"); state != StateMiss {
		t.Errorf("state = %v, want miss", state)
	}
}

func TestCacheStalenessWindow(t *testing.T) {
	s := New(nil, testLogger())
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	s.Set(ctx, "k", []byte("v"), 60*time.Second, 120*time.Second)

	t.Run("fresh before ttl", func(t *testing.T) {
		now = base.Add(59 * time.Second)
		if _, state := s.Get(ctx, "k"); state != StateFresh {
			t.Errorf("state = %v, want fresh", state)
		}
	})

	t.Run("stale between ttl and ttl+swr", func(t *testing.T) {
		now = base.Add(61 * time.Second)
		v, state := s.Get(ctx, "k")
		if state != StateStale {
			t.Errorf("state = %v, want stale", state)
		}
		if string(v) != "v" {
			t.Errorf("stale read lost value: %q", v)
		}
	})

	t.Run("miss after ttl+swr", func(t *testing.T) {
		now = base.Add(181 * time.Second)
		if _, state := s.Get(ctx, "k"); state != StateMiss {
			t.Errorf("state = %v, want miss", state)
		}
	})
}

func TestCacheLastWriterWins(t *testing.T) {
	s := New(nil, testLogger())
	ctx := context.Background()

	s.Set(ctx, "k", []byte("old"), time.Minute, 0)
	s.Set(ctx, "k", []byte("new"), time.Minute, 0)

	v, _ := s.Get(ctx, "k")
	if string(v) != "new" {
		t.Errorf("value = %q, want new", v)
	}
}

func TestMemoryBackendCleanup(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	base := time.Now()
	_ = m.Set(ctx, "dead", &Entry{Value: []byte("x"), StoredAt: base.Add(-10 * time.Minute), TTL: time.Minute, SWR: time.Minute})
	_ = m.Set(ctx, "live", &Entry{Value: []byte("y"), StoredAt: base, TTL: time.Hour, SWR: 0})

	if evicted := m.Cleanup(); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestStoreCleanupEvictsExpiredFallbackEntries(t *testing.T) {
	// Memory-only store: the fallback is the primary backend, and Cleanup
	// must bound its growth once entries age past ttl+swr.
	s := New(nil, testLogger())
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }
	s.fallback.now = func() time.Time { return now }

	s.Set(ctx, "dead", []byte("x"), time.Minute, time.Minute)
	now = base.Add(time.Hour)
	s.Set(ctx, "live", []byte("y"), time.Hour, 0)

	if evicted := s.Cleanup(); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if s.fallback.Len() != 1 {
		t.Errorf("len = %d, want 1", s.fallback.Len())
	}
	if evicted := s.Cleanup(); evicted != 0 {
		t.Errorf("second cleanup evicted %d, want 0", evicted)
	}
	if _, state := s.Get(ctx, "live"); state != StateFresh {
		t.Error("cleanup removed a live entry")
	}
}

type failingBackend struct {
	healthy bool
}

func (f *failingBackend) Get(context.Context, string) (*Entry, bool, error) {
	return nil, false, errors.New("store unavailable")
}
func (f *failingBackend) Set(context.Context, string, *Entry) error {
	return errors.New("store unavailable")
}
func (f *failingBackend) Delete(context.Context, string) error { return nil }
func (f *failingBackend) HealthCheck(context.Context) error {
	if f.healthy {
		return nil
	}
	return errors.New("probe failed")
}
func (f *failingBackend) Close() error { return nil }

func TestStoreProbeSelectsFallback(t *testing.T) {
	s := New(&failingBackend{healthy: false}, testLogger())
	if !s.Degraded() {
		t.Fatal("expected store to select fallback after failed probe")
	}

	ctx := context.Background()
	s.Set(ctx, "k", []byte("v"), time.Minute, 0)
	if _, state := s.Get(ctx, "k"); state != StateFresh {
		t.Error("fallback store did not serve the write")
	}
}

func TestStoreDegradesMidRun(t *testing.T) {
	// Probe passes, then every operation fails: the store must degrade to
	// memory and keep serving without surfacing errors.
	s := New(&failingBackend{healthy: true}, testLogger())
	if s.Degraded() {
		t.Fatal("degraded before any failure")
	}

	ctx := context.Background()
	s.Set(ctx, "k", []byte("v"), time.Minute, 0)
	if !s.Degraded() {
		t.Fatal("expected degrade after backend write failure")
	}

	v, state := s.Get(ctx, "k")
	if state != StateFresh || string(v) != "v" {
		t.Errorf("got (%q, %v) from fallback, want (v, fresh)", v, state)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	stored := time.Now().Truncate(time.Second)
	err = b.Set(ctx, "k", &Entry{Value: []byte("320"), StoredAt: stored, TTL: 60 * time.Second, SWR: 30 * time.Second})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	e, ok, err := b.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(e.Value) != "320" || e.TTL != 60*time.Second || e.SWR != 30*time.Second {
		t.Errorf("entry mismatch: %+v", e)
	}
	if !e.StoredAt.Equal(stored) {
		t.Errorf("stored_at = %v, want %v", e.StoredAt, stored)
	}

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("entry survived delete")
	}
}

func TestSQLiteBackendPurge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	_ = b.Set(ctx, "dead", &Entry{Value: []byte("x"), StoredAt: time.Now().Add(-time.Hour), TTL: time.Minute, SWR: time.Minute})
	_ = b.Set(ctx, "live", &Entry{Value: []byte("y"), StoredAt: time.Now(), TTL: time.Hour, SWR: 0})

	n, err := b.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, ok, _ := b.Get(ctx, "live"); !ok {
		t.Error("purge removed a live entry")
	}
}

func TestFetcherCoalescesConcurrentMisses(t *testing.T) {
	s := New(nil, testLogger())
	f := NewFetcher(s)
	ctx := context.Background()

	var calls atomic.Int64
	release := make(chan struct{})
	fn := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("299.99"), nil
	}

	const waiters = 10
	var wg sync.WaitGroup
	results := make([][]byte, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Fetch(ctx, "price-monitor:abc", time.Minute, 0, fn)
			if err != nil {
				t.Errorf("Fetch: %v", err)
				return
			}
			results[i] = v
		}(i)
	}

	// Give every goroutine a chance to join the flight before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	for i, v := range results {
		if string(v) != "299.99" {
			t.Errorf("waiter %d got %q", i, v)
		}
	}

	// The shared result must also be cached.
	if _, state := s.Get(ctx, "price-monitor:abc"); state != StateFresh {
		t.Error("fetched value was not written through to the store")
	}
}

func TestFetcherErrorNotCached(t *testing.T) {
	s := New(nil, testLogger())
	f := NewFetcher(s)
	ctx := context.Background()

	_, err := f.Fetch(ctx, "k", time.Minute, 0, func(context.Context) ([]byte, error) {
		return nil, errors.New("upstream unavailable")
	})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if _, state := s.Get(ctx, "k"); state != StateMiss {
		t.Error("failed fetch left a cache entry behind")
	}
}
