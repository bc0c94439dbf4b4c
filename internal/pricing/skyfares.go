package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/farewatch/farewatch/internal/observ"
)

// SkyfaresAdapter implements Fetcher against the Skyfares pricing HTTP API.
// A client-side limiter smooths requests under the provider's per-minute
// ceiling; the quota tracker remains the authority on whether a request may
// happen at all.
type SkyfaresAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// SkyfaresConfig holds adapter settings.
type SkyfaresConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	RatePerMinute  int
}

func NewSkyfaresAdapter(cfg SkyfaresConfig) (*SkyfaresAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("skyfares base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("skyfares API key is required")
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}

	return &SkyfaresAdapter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60), 1),
	}, nil
}

type skyfaresResponse struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type skyfaresError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *SkyfaresAdapter) Fetch(ctx context.Context, origin, destination, date string) (*FareQuote, error) {
	route := origin + "-" + destination
	start := time.Now()

	if err := a.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTimeoutError(route, err)
		}
		return nil, NewUpstreamError(route, "limiter wait interrupted", err)
	}

	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("date", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/fares?"+q.Encode(), nil)
	if err != nil {
		return nil, NewUpstreamError(route, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		observ.IncCounter("fare_fetch_total", map[string]string{"result": "error"})
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewTimeoutError(route, err)
		}
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, NewTimeoutError(route, err)
		}
		return nil, NewUpstreamError(route, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		observ.IncCounter("fare_fetch_total", map[string]string{"result": "rate_limited"})
		return nil, NewRateLimitError(route, "provider returned 429")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		var apiErr skyfaresError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		observ.IncCounter("fare_fetch_total", map[string]string{"result": "invalid_route"})
		return nil, NewInvalidRouteError(route, apiErr.Message)
	default:
		observ.IncCounter("fare_fetch_total", map[string]string{"result": "error"})
		return nil, NewUpstreamError(route, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var body skyfaresResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		observ.IncCounter("fare_fetch_total", map[string]string{"result": "error"})
		return nil, NewUpstreamError(route, "decode response", err)
	}
	if body.Price <= 0 {
		return nil, NewUpstreamError(route, fmt.Sprintf("invalid price %.2f", body.Price), nil)
	}

	observ.IncCounter("fare_fetch_total", map[string]string{"result": "success"})
	observ.RecordDuration("fare_fetch_latency", time.Since(start), map[string]string{"source": "skyfares"})

	return &FareQuote{
		Origin:      origin,
		Destination: destination,
		Date:        date,
		Price:       body.Price,
		Currency:    body.Currency,
		FetchedAt:   time.Now().UTC(),
		Source:      "skyfares",
	}, nil
}

func (a *SkyfaresAdapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (a *SkyfaresAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
