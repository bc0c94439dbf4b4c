package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu     sync.Mutex
	alerts map[string]*PriceAlert

	// ListErr, when set, makes ListActive fail. Used to exercise the
	// engine's abort path.
	ListErr error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{alerts: make(map[string]*PriceAlert)}
}

// Add seeds an alert, defaulting it to active.
func (r *MemoryRepository) Add(a PriceAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Active = !a.Triggered
	cp := a
	r.alerts[a.ID] = &cp
}

func (r *MemoryRepository) ListActive(_ context.Context) ([]PriceAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListErr != nil {
		return nil, r.ListErr
	}

	var out []PriceAlert
	for _, a := range r.alerts {
		if a.Active && !a.Triggered {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) MarkTriggered(_ context.Context, id string, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.Triggered {
		return fmt.Errorf("alert %s not found or already triggered", id)
	}
	now := time.Now().UTC()
	a.Triggered = true
	a.Active = false
	a.CurrentPrice = &price
	a.TriggeredAt = &now
	return nil
}

func (r *MemoryRepository) UpdateCurrentPrice(_ context.Context, id string, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	a.CurrentPrice = &price
	return nil
}

// Get returns a copy of the stored alert, for assertions.
func (r *MemoryRepository) Get(id string) (PriceAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return PriceAlert{}, false
	}
	return *a, true
}
