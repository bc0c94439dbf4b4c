// Package pricing defines the metered upstream fare provider contract and
// its adapters.
package pricing

import (
	"context"
	"fmt"
	"time"
)

// FareQuote is a normalized price observation from any provider.
type FareQuote struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"` // departure date bucket, YYYY-MM-DD
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	FetchedAt   time.Time `json:"fetched_at"`
	Source      string    `json:"source"` // "skyfares"|"mock"
}

// Fetcher performs the metered upstream pricing call. The monitor engine only
// invokes Fetch after a successful quota acquire.
type Fetcher interface {
	Fetch(ctx context.Context, origin, destination, date string) (*FareQuote, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Error kinds for failed fetches.
const (
	KindRateLimited         = "rate_limited"
	KindUpstreamUnavailable = "upstream_unavailable"
	KindTimeout             = "timeout"
	KindInvalidRoute        = "invalid_route"
)

// FetchError carries the failure taxonomy for one fetch attempt.
type FetchError struct {
	Kind    string
	Route   string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error for %s: %s (%v)", e.Kind, e.Route, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error for %s: %s", e.Kind, e.Route, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func NewRateLimitError(route, message string) *FetchError {
	return &FetchError{Kind: KindRateLimited, Route: route, Message: message}
}

func NewUpstreamError(route, message string, cause error) *FetchError {
	return &FetchError{Kind: KindUpstreamUnavailable, Route: route, Message: message, Cause: cause}
}

func NewTimeoutError(route string, cause error) *FetchError {
	return &FetchError{Kind: KindTimeout, Route: route, Message: "request timed out", Cause: cause}
}

func NewInvalidRouteError(route, message string) *FetchError {
	return &FetchError{Kind: KindInvalidRoute, Route: route, Message: message}
}

// Kind extracts the taxonomy kind, or "unknown" for untyped errors.
func Kind(err error) string {
	if fe, ok := err.(*FetchError); ok {
		return fe.Kind
	}
	return "unknown"
}
