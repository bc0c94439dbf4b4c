// Package monitor runs batch sweeps of price alerts against a cost-limited
// fare provider. One Run lists the active alerts, checks each through the
// cache / quota / fetch pipeline on a bounded worker pool, and aggregates
// per-alert outcomes into a run summary. Per-alert problems are data in the
// summary, never errors out of Run; the only error Run returns is a failure
// to list the alerts in the first place.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/farewatch/farewatch/internal/alert"
	"github.com/farewatch/farewatch/internal/cachekey"
	"github.com/farewatch/farewatch/internal/cachestore"
	"github.com/farewatch/farewatch/internal/notify"
	"github.com/farewatch/farewatch/internal/observ"
	"github.com/farewatch/farewatch/internal/pricing"
	"github.com/farewatch/farewatch/internal/quota"
)

const keyNamespace = "price-monitor"

// RunState tracks one sweep through its lifecycle.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// OutcomeKind tags the result of checking one alert.
type OutcomeKind int

const (
	OutcomeChecked OutcomeKind = iota // price resolved, no trigger
	OutcomeTriggered
	OutcomeFailed
	OutcomeSkipped // rate limited this sweep; not a failure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeChecked:
		return "checked"
	case OutcomeTriggered:
		return "triggered"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Outcome is the per-alert result flowing from workers to the aggregator.
type Outcome struct {
	AlertID string
	Kind    OutcomeKind
	Reason  string // failure/skip taxonomy kind
	Price   float64
}

// RunError records one failed alert in the summary.
type RunError struct {
	AlertID string `json:"alert_id"`
	Reason  string `json:"reason"`
}

// RunSummary is the aggregate result of one sweep.
type RunSummary struct {
	RunID          string     `json:"run_id"`
	InvokedBy      string     `json:"invoked_by"` // "scheduled"|"manual"
	State          RunState   `json:"state"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
	DurationMs     int64      `json:"duration_ms"`
	TotalChecked   int        `json:"total_checked"`
	TotalTriggered int        `json:"total_triggered"`
	TotalFailed    int        `json:"total_failed"`
	TotalSkipped   int        `json:"total_skipped"`
	Incomplete     bool       `json:"incomplete"`
	Errors         []RunError `json:"errors,omitempty"`
}

// Config holds engine tunables.
type Config struct {
	Workers    int
	CacheTTL   time.Duration
	CacheSWR   time.Duration
	Scope      string // quota scope, usually the provider name
	DateBucket string // time layout bucketing the cache-key date
}

// Engine orchestrates sweeps. Safe for overlapping Run calls: the cache,
// quota tracker and repository are all concurrency-safe, and each Run owns
// its summary.
type Engine struct {
	repo       alert.Repository
	fetcher    pricing.Fetcher
	cache      *cachestore.Store
	flight     *cachestore.Fetcher
	quota      *quota.Tracker
	dispatcher notify.Dispatcher
	cfg        Config
	logger     *log.Logger
	now        func() time.Time
	bg         sync.WaitGroup // detached revalidations + notification sends
}

func New(repo alert.Repository, fetcher pricing.Fetcher, cache *cachestore.Store,
	tracker *quota.Tracker, dispatcher notify.Dispatcher, cfg Config, logger *log.Logger) *Engine {

	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.CacheSWR < 0 {
		cfg.CacheSWR = 0
	}
	if cfg.Scope == "" {
		cfg.Scope = "provider"
	}
	if cfg.DateBucket == "" {
		cfg.DateBucket = "2006-01-02"
	}

	return &Engine{
		repo:       repo,
		fetcher:    fetcher,
		cache:      cache,
		flight:     cachestore.NewFetcher(cache),
		quota:      tracker,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one sweep. The context deadline bounds dispatch of new alert
// checks; in-flight checks always finish and the summary stays well-formed.
func (e *Engine) Run(ctx context.Context, invokedBy string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		InvokedBy: invokedBy,
		State:     RunPending,
		StartedAt: e.now(),
	}

	alerts, err := e.repo.ListActive(ctx)
	if err != nil {
		summary.State = RunAborted
		e.finish(summary)
		observ.IncCounter("monitor_run_aborted_total", nil)
		return summary, fmt.Errorf("list active alerts: %w", err)
	}

	summary.State = RunRunning
	observ.Log("monitor_run_started", map[string]any{
		"run_id":     summary.RunID,
		"invoked_by": invokedBy,
		"alerts":     len(alerts),
	})

	jobs := make(chan alert.PriceAlert)
	results := make(chan Outcome)
	var incomplete atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- e.checkAlert(ctx, a)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(jobs)
		for _, a := range alerts {
			select {
			case <-ctx.Done():
				// Deadline: stop starting new checks, let in-flight finish.
				incomplete.Store(true)
				return
			case jobs <- a:
			}
		}
	}()

	// Single aggregator; the only writer of the summary counters.
	for out := range results {
		switch out.Kind {
		case OutcomeTriggered:
			summary.TotalChecked++
			summary.TotalTriggered++
		case OutcomeChecked:
			summary.TotalChecked++
		case OutcomeFailed:
			summary.TotalFailed++
			summary.Errors = append(summary.Errors, RunError{AlertID: out.AlertID, Reason: out.Reason})
		case OutcomeSkipped:
			summary.TotalSkipped++
		}
	}

	summary.Incomplete = incomplete.Load()
	summary.State = RunCompleted
	e.finish(summary)

	observ.IncCounter("monitor_run_completed_total", nil)
	observ.RecordDuration("monitor_run_duration", time.Duration(summary.DurationMs)*time.Millisecond, nil)
	observ.Log("monitor_run_completed", map[string]any{
		"run_id":      summary.RunID,
		"invoked_by":  invokedBy,
		"checked":     summary.TotalChecked,
		"triggered":   summary.TotalTriggered,
		"failed":      summary.TotalFailed,
		"skipped":     summary.TotalSkipped,
		"incomplete":  summary.Incomplete,
		"duration_ms": summary.DurationMs,
	})
	return summary, nil
}

func (e *Engine) finish(s *RunSummary) {
	s.FinishedAt = e.now()
	s.DurationMs = s.FinishedAt.Sub(s.StartedAt).Milliseconds()
}

// cachedFare is the payload stored under a price-monitor cache key.
type cachedFare struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// checkAlert resolves a price through the cache/quota/fetch pipeline and
// applies the trigger decision. Everything that can go wrong for one alert
// is converted into an Outcome here; nothing escapes to abort the sweep.
func (e *Engine) checkAlert(ctx context.Context, a alert.PriceAlert) Outcome {
	date := e.now().UTC().Format(e.cfg.DateBucket)
	key := cachekey.Key(keyNamespace, map[string]any{
		"origin":      a.Origin,
		"destination": a.Destination,
		"date_bucket": date,
	})

	var price float64
	val, state := e.cache.Get(ctx, key)

	if state != cachestore.StateMiss {
		var fare cachedFare
		if err := json.Unmarshal(val, &fare); err != nil {
			// Corrupt entry; re-fetch as if missed.
			state = cachestore.StateMiss
		} else {
			price = fare.Price
			if state == cachestore.StateStale {
				// Decide on the stale price now; refresh in the background
				// for the next sweep.
				e.spawnRevalidate(key, a, date)
			}
		}
	}

	if state == cachestore.StateMiss {
		if !e.quota.TryAcquire(ctx, e.cfg.Scope) {
			observ.IncCounter("monitor_alert_skipped_total", nil)
			return Outcome{AlertID: a.ID, Kind: OutcomeSkipped, Reason: pricing.KindRateLimited}
		}
		b, err := e.flight.Fetch(ctx, key, e.cfg.CacheTTL, e.cfg.CacheSWR, func(ctx context.Context) ([]byte, error) {
			return e.fetchFare(ctx, a.Origin, a.Destination, date)
		})
		if err != nil {
			observ.IncCounter("monitor_alert_failed_total", map[string]string{"reason": pricing.Kind(err)})
			return Outcome{AlertID: a.ID, Kind: OutcomeFailed, Reason: pricing.Kind(err)}
		}
		var fare cachedFare
		if err := json.Unmarshal(b, &fare); err != nil {
			return Outcome{AlertID: a.ID, Kind: OutcomeFailed, Reason: "bad_cache_payload"}
		}
		price = fare.Price
	}

	return e.decide(ctx, a, price)
}

// decide compares the resolved price to the alert's target and records the
// result. Notification delivery is fire-and-forget.
func (e *Engine) decide(ctx context.Context, a alert.PriceAlert, price float64) Outcome {
	if price <= a.TargetPrice {
		if err := e.repo.MarkTriggered(ctx, a.ID, price); err != nil {
			e.logger.Printf("mark triggered %s: %v", a.ID, err)
			return Outcome{AlertID: a.ID, Kind: OutcomeFailed, Reason: "mark_triggered: " + err.Error()}
		}
		e.dispatch(a, price)
		observ.IncCounter("monitor_alert_triggered_total", nil)
		return Outcome{AlertID: a.ID, Kind: OutcomeTriggered, Price: price}
	}

	if err := e.repo.UpdateCurrentPrice(ctx, a.ID, price); err != nil {
		e.logger.Printf("update current price %s: %v", a.ID, err)
		return Outcome{AlertID: a.ID, Kind: OutcomeFailed, Reason: "update_price: " + err.Error()}
	}
	return Outcome{AlertID: a.ID, Kind: OutcomeChecked, Price: price}
}

// fetchFare performs the metered upstream call and encodes the cache payload.
func (e *Engine) fetchFare(ctx context.Context, origin, destination, date string) ([]byte, error) {
	q, err := e.fetcher.Fetch(ctx, origin, destination, date)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cachedFare{Price: q.Price, Currency: q.Currency})
}

// spawnRevalidate refreshes a stale cache entry off the sweep path. The task
// is still quota-gated, its result only updates the cache, and its errors are
// logged at the task boundary so they can never reach an alert's outcome.
func (e *Engine) spawnRevalidate(key string, a alert.PriceAlert, date string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if !e.quota.TryAcquire(ctx, e.cfg.Scope) {
			observ.IncCounter("cache_revalidate_total", map[string]string{"result": "rate_limited"})
			return
		}
		_, err := e.flight.Fetch(ctx, key, e.cfg.CacheTTL, e.cfg.CacheSWR, func(ctx context.Context) ([]byte, error) {
			return e.fetchFare(ctx, a.Origin, a.Destination, date)
		})
		if err != nil {
			observ.Warn("cache_revalidate_failed", map[string]any{
				"key":   key,
				"route": a.Origin + "-" + a.Destination,
				"error": err.Error(),
			})
			observ.IncCounter("cache_revalidate_total", map[string]string{"result": "error"})
			return
		}
		observ.IncCounter("cache_revalidate_total", map[string]string{"result": "success"})
	}()
}

// dispatch sends a trigger event without blocking the alert's outcome.
func (e *Engine) dispatch(a alert.PriceAlert, price float64) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.dispatcher.Send(ctx, a, price); err != nil {
			e.logger.Printf("notification for alert %s failed: %v", a.ID, err)
			observ.Warn("notify_send_failed", map[string]any{"alert_id": a.ID, "error": err.Error()})
		}
	}()
}

// Drain waits for detached revalidations and notification sends. Call at
// process shutdown (and in tests) so background work is not cut off.
func (e *Engine) Drain() {
	e.bg.Wait()
}
