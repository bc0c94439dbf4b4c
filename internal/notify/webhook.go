package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/farewatch/farewatch/internal/alert"
	"github.com/farewatch/farewatch/internal/observ"
)

// WebhookDispatcher posts trigger events as JSON to a configured endpoint
// (the notification service owns formatting and fan-out to email/push).
type WebhookDispatcher struct {
	url        string
	httpClient *http.Client
}

type triggerEvent struct {
	AlertID     string    `json:"alert_id"`
	UserID      string    `json:"user_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	TargetPrice float64   `json:"target_price"`
	Price       float64   `json:"price"`
	TriggeredAt time.Time `json:"triggered_at"`
}

func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookDispatcher{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *WebhookDispatcher) Send(ctx context.Context, a alert.PriceAlert, price float64) error {
	body, err := json.Marshal(triggerEvent{
		AlertID:     a.ID,
		UserID:      a.UserID,
		Origin:      a.Origin,
		Destination: a.Destination,
		TargetPrice: a.TargetPrice,
		Price:       price,
		TriggeredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode trigger event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		observ.IncCounter("notify_send_total", map[string]string{"result": "error"})
		return fmt.Errorf("post trigger event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		observ.IncCounter("notify_send_total", map[string]string{"result": "error"})
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	observ.IncCounter("notify_send_total", map[string]string{"result": "success"})
	return nil
}

// LogDispatcher writes trigger events to the structured log. Useful for dev
// runs without a notification service.
type LogDispatcher struct{}

func (LogDispatcher) Send(_ context.Context, a alert.PriceAlert, price float64) error {
	observ.Log("alert_triggered", map[string]any{
		"alert_id":     a.ID,
		"user_id":      a.UserID,
		"route":        a.Origin + "-" + a.Destination,
		"target_price": a.TargetPrice,
		"price":        price,
	})
	return nil
}
