package quota

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/farewatch/farewatch/internal/observ"
)

const (
	dailyWindow  = 24 * time.Hour
	minuteWindow = time.Minute
)

// Config carries the per-scope limits.
type Config struct {
	DailyLimit  int64
	MinuteLimit int64
}

// Stats is the shape read by the external reporting surface.
type Stats struct {
	DailyCount     int64     `json:"daily_count"`
	DailyLimit     int64     `json:"daily_limit"`
	DailyRemaining int64     `json:"daily_remaining"`
	MinuteCount    int64     `json:"minute_count"`
	MinuteLimit    int64     `json:"minute_limit"`
	PercentUsed    int       `json:"percent_used"`
	ResetTime      time.Time `json:"reset_time"`
}

// Tracker enforces daily and minute quotas for a scope. The backing counter
// is chosen once at construction via a health probe; if the shared counter
// fails mid-run the tracker degrades to local-only counting for the rest of
// the process lifetime. TryAcquire never panics and never blocks on a broken
// backend.
type Tracker struct {
	counter  Counter
	local    *LocalCounter
	cfg      Config
	degraded atomic.Bool
	logger   *log.Logger
	now      func() time.Time
}

// New selects shared if it passes a one-time health probe, the local counter
// otherwise. shared may be nil.
func New(shared Counter, cfg Config, logger *log.Logger) *Tracker {
	t := &Tracker{
		local:  NewLocalCounter(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	if cfg.DailyLimit <= 0 {
		t.cfg.DailyLimit = 1
	}
	if cfg.MinuteLimit <= 0 {
		t.cfg.MinuteLimit = t.cfg.DailyLimit
	}

	if shared == nil {
		t.counter = t.local
		return t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := shared.HealthCheck(ctx); err != nil {
		logger.Printf("shared usage counter unhealthy, using local counter: %v", err)
		observ.Warn("quota_counter_probe_failed", map[string]any{"error": err.Error()})
		t.counter = t.local
		t.degraded.Store(true)
		return t
	}
	t.counter = shared
	return t
}

// TryAcquire consumes one unit of quota for scope across both windows.
// A denial leaves every counter untouched apart from minute tokens already
// consumed before the daily check, which the pre-read below avoids in the
// common case.
func (t *Tracker) TryAcquire(ctx context.Context, scope string) bool {
	now := t.now()
	dailyKey := t.windowKey(scope, "daily", now)
	minuteKey := t.windowKey(scope, "minute", now)

	// Cheap daily pre-read so an exhausted day does not burn minute tokens.
	if count, err := t.current().Count(ctx, dailyKey); err == nil && count >= t.cfg.DailyLimit {
		observ.IncCounter("quota_denied_total", map[string]string{"scope": scope, "window": "daily"})
		return false
	}

	_, allowed, err := t.current().Increment(ctx, minuteKey, t.cfg.MinuteLimit, 2*minuteWindow)
	if err != nil {
		t.degrade(err)
		_, allowed, _ = t.local.Increment(ctx, minuteKey, t.cfg.MinuteLimit, 2*minuteWindow)
	}
	if !allowed {
		observ.IncCounter("quota_denied_total", map[string]string{"scope": scope, "window": "minute"})
		return false
	}

	count, allowed, err := t.current().Increment(ctx, dailyKey, t.cfg.DailyLimit, 2*dailyWindow)
	if err != nil {
		t.degrade(err)
		count, allowed, _ = t.local.Increment(ctx, dailyKey, t.cfg.DailyLimit, 2*dailyWindow)
	}
	if !allowed {
		observ.IncCounter("quota_denied_total", map[string]string{"scope": scope, "window": "daily"})
		return false
	}

	observ.SetGauge("quota_used_pct", percentUsed(count, t.cfg.DailyLimit), map[string]string{"scope": scope})
	return true
}

// Stats reports current usage for scope.
func (t *Tracker) Stats(ctx context.Context, scope string) Stats {
	now := t.now()
	dailyStart := now.Truncate(dailyWindow)

	daily := t.readCount(ctx, t.windowKey(scope, "daily", now))
	minute := t.readCount(ctx, t.windowKey(scope, "minute", now))

	remaining := t.cfg.DailyLimit - daily
	if remaining < 0 {
		remaining = 0
	}

	return Stats{
		DailyCount:     daily,
		DailyLimit:     t.cfg.DailyLimit,
		DailyRemaining: remaining,
		MinuteCount:    minute,
		MinuteLimit:    t.cfg.MinuteLimit,
		PercentUsed:    int(percentUsed(daily, t.cfg.DailyLimit)),
		ResetTime:      dailyStart.Add(dailyWindow),
	}
}

// Degraded reports whether the tracker has fallen back to local counting.
func (t *Tracker) Degraded() bool {
	return t.degraded.Load()
}

func (t *Tracker) readCount(ctx context.Context, key string) int64 {
	count, err := t.current().Count(ctx, key)
	if err != nil {
		t.degrade(err)
		count, _ = t.local.Count(ctx, key)
	}
	return count
}

func (t *Tracker) current() Counter {
	if t.degraded.Load() {
		return t.local
	}
	return t.counter
}

func (t *Tracker) degrade(err error) {
	if t.degraded.Swap(true) {
		return
	}
	t.logger.Printf("shared usage counter failed, degrading to local counting: %v", err)
	observ.Warn("quota_counter_degraded", map[string]any{"error": err.Error()})
}

// windowKey buckets a scope/window pair by window start, so rollover is a
// new key rather than a mutation of the old one.
func (t *Tracker) windowKey(scope, window string, now time.Time) string {
	var start time.Time
	switch window {
	case "daily":
		start = now.Truncate(dailyWindow)
	default:
		start = now.Truncate(minuteWindow)
	}
	return fmt.Sprintf("%s:%s:%d", scope, window, start.Unix())
}

func percentUsed(count, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	pct := math.Round(float64(count) / float64(limit) * 100)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
