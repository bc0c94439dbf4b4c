package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *SkyfaresAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewSkyfaresAdapter(SkyfaresConfig{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		RatePerMinute: 6000,
	})
	if err != nil {
		t.Fatalf("NewSkyfaresAdapter: %v", err)
	}
	return a
}

func TestSkyfaresFetchSuccess(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		if r.URL.Query().Get("origin") != "JFK" || r.URL.Query().Get("destination") != "LAX" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(skyfaresResponse{Price: 275.00, Currency: "USD"})
	})

	q, err := a.Fetch(context.Background(), "JFK", "LAX", "2026-03-14")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if q.Price != 275.00 || q.Currency != "USD" || q.Source != "skyfares" {
		t.Errorf("quote = %+v", q)
	}
}

func TestSkyfaresErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind string
	}{
		{"rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"bad route", http.StatusBadRequest, KindInvalidRoute},
		{"not found", http.StatusNotFound, KindInvalidRoute},
		{"server error", http.StatusInternalServerError, KindUpstreamUnavailable},
		{"bad gateway", http.StatusBadGateway, KindUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := a.Fetch(context.Background(), "JFK", "LAX", "2026-03-14")
			if err == nil {
				t.Fatal("expected error")
			}
			if Kind(err) != tt.wantKind {
				t.Errorf("kind = %s, want %s", Kind(err), tt.wantKind)
			}
		})
	}
}

func TestSkyfaresRejectsNonPositivePrice(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(skyfaresResponse{Price: 0, Currency: "USD"})
	})
	if _, err := a.Fetch(context.Background(), "JFK", "LAX", "2026-03-14"); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestKindUnknownForUntypedError(t *testing.T) {
	if got := Kind(context.Canceled); got != "unknown" {
		t.Errorf("Kind = %s, want unknown", got)
	}
}

func TestMockFetcher(t *testing.T) {
	m := NewMockFetcher()
	ctx := context.Background()

	t.Run("known route", func(t *testing.T) {
		q, err := m.Fetch(ctx, "JFK", "LAX", "2026-03-14")
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if q.Price != 275.00 || q.Source != "mock" {
			t.Errorf("quote = %+v", q)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		_, err := m.Fetch(ctx, "XXX", "YYY", "2026-03-14")
		if Kind(err) != KindInvalidRoute {
			t.Errorf("kind = %s, want invalid_route", Kind(err))
		}
	})

	t.Run("injected error", func(t *testing.T) {
		m.SetError("JFK", "LAX", NewUpstreamError("JFK-LAX", "boom", nil))
		_, err := m.Fetch(ctx, "JFK", "LAX", "2026-03-14")
		if Kind(err) != KindUpstreamUnavailable {
			t.Errorf("kind = %s, want upstream_unavailable", Kind(err))
		}
	})

	if m.Calls() != 3 {
		t.Errorf("calls = %d, want 3", m.Calls())
	}
}
