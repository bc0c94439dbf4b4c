package cachestore

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is the in-process fallback store: a mutex-guarded map with
// periodic cleanup of entries past their stale window.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[key] = &cp
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) HealthCheck(_ context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }

// Cleanup removes entries past ttl+swr and returns how many were evicted.
func (m *MemoryBackend) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	evicted := 0
	for key, e := range m.entries {
		if now.Sub(e.StoredAt) > e.TTL+e.SWR {
			delete(m.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live entries, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
