// Package notify delivers trigger events. Delivery is best-effort: the
// monitor engine fires dispatches without waiting on them, and a failed send
// is logged, never surfaced into an alert's outcome.
package notify

import (
	"context"

	"github.com/farewatch/farewatch/internal/alert"
)

// Dispatcher is the delivery contract consumed by the monitor engine.
type Dispatcher interface {
	Send(ctx context.Context, a alert.PriceAlert, price float64) error
}
