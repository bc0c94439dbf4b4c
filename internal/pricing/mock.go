package pricing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockFetcher is a configurable in-memory provider for tests and local
// development. Routes are keyed "ORIGIN-DESTINATION".
type MockFetcher struct {
	mu      sync.RWMutex
	prices  map[string]float64
	errs    map[string]error
	healthy bool
	calls   atomic.Int64
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		prices: map[string]float64{
			"JFK-LAX": 275.00,
			"SFO-ORD": 189.50,
			"BOS-MIA": 142.00,
		},
		errs:    make(map[string]error),
		healthy: true,
	}
}

// SetPrice sets the price returned for a route.
func (m *MockFetcher) SetPrice(origin, destination string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[origin+"-"+destination] = price
}

// SetError makes the route fail with the given error.
func (m *MockFetcher) SetError(origin, destination string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[origin+"-"+destination] = err
}

// SetHealth controls HealthCheck results.
func (m *MockFetcher) SetHealth(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Calls reports how many Fetch calls reached the mock.
func (m *MockFetcher) Calls() int64 {
	return m.calls.Load()
}

func (m *MockFetcher) Fetch(_ context.Context, origin, destination, date string) (*FareQuote, error) {
	m.calls.Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()

	route := origin + "-" + destination
	if err, ok := m.errs[route]; ok {
		return nil, err
	}
	price, ok := m.prices[route]
	if !ok {
		return nil, NewInvalidRouteError(route, "unknown route")
	}

	return &FareQuote{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		Price:       price,
		Currency:    "USD",
		FetchedAt:   time.Now().UTC(),
		Source:      "mock",
	}, nil
}

func (m *MockFetcher) HealthCheck(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.healthy {
		return fmt.Errorf("mock fetcher marked unhealthy")
	}
	return nil
}

func (m *MockFetcher) Close() error { return nil }
