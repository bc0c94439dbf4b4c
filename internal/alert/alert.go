// Package alert holds the price-watch model and its persistence contract.
package alert

import (
	"context"
	"time"
)

// PriceAlert is one user-defined watch condition. The monitor engine only
// writes CurrentPrice, Triggered and TriggeredAt; everything else belongs to
// the CRUD surface that created the alert.
type PriceAlert struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Origin       string     `json:"origin"`
	Destination  string     `json:"destination"`
	TargetPrice  float64    `json:"target_price"`
	CurrentPrice *float64   `json:"current_price,omitempty"`
	Active       bool       `json:"active"`
	Triggered    bool       `json:"triggered"`
	TriggeredAt  *time.Time `json:"triggered_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Repository is the persistence contract the monitor engine consumes.
//
// ListActive excludes triggered rows: once an alert is marked triggered it
// can never be selected by a later sweep, which is what makes notification
// delivery idempotent across repeated and overlapping runs.
type Repository interface {
	ListActive(ctx context.Context) ([]PriceAlert, error)
	MarkTriggered(ctx context.Context, id string, price float64) error
	UpdateCurrentPrice(ctx context.Context, id string, price float64) error
}
