package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/farewatch/farewatch/internal/alert"
	"github.com/farewatch/farewatch/internal/cachestore"
	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/monitor"
	"github.com/farewatch/farewatch/internal/notify"
	"github.com/farewatch/farewatch/internal/observ"
	"github.com/farewatch/farewatch/internal/pricing"
	"github.com/farewatch/farewatch/internal/quota"
)

// app wires the whole protection layer out of the loaded config. The shared
// SQLite stores are optional: a missing path, a failed open, or a failed
// health probe all leave the process running on in-process fallbacks. Only a
// broken alerts database stops startup.
type app struct {
	cfg        config.Root
	logger     *log.Logger
	scope      string
	repo       *alert.SQLiteRepository
	fetcher    pricing.Fetcher
	cache      *cachestore.Store
	cacheSQL   *cachestore.SQLiteBackend
	tracker    *quota.Tracker
	counterSQL *quota.SQLiteCounter
	engine     *monitor.Engine
	closers    []io.Closer
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	a := &app{cfg: cfg, logger: log.New(os.Stderr, "", log.LstdFlags)}

	var cacheBackend cachestore.Backend
	if cfg.Cache.StorePath != "" {
		if b, err := openSQLite(cfg.Cache.StorePath, cachestore.NewSQLiteBackend); err != nil {
			a.logger.Printf("open shared cache store %s: %v (continuing with in-process cache)", cfg.Cache.StorePath, err)
			observ.Warn("cache_store_open_failed", map[string]any{"path": cfg.Cache.StorePath, "error": err.Error()})
		} else {
			a.cacheSQL = b
			cacheBackend = b
			a.closers = append(a.closers, b)
		}
	}
	a.cache = cachestore.New(cacheBackend, a.logger)

	var counter quota.Counter
	if cfg.Quota.StorePath != "" {
		if c, err := openSQLite(cfg.Quota.StorePath, quota.NewSQLiteCounter); err != nil {
			a.logger.Printf("open shared usage counter %s: %v (continuing with local counting)", cfg.Quota.StorePath, err)
			observ.Warn("quota_counter_open_failed", map[string]any{"path": cfg.Quota.StorePath, "error": err.Error()})
		} else {
			a.counterSQL = c
			counter = c
			a.closers = append(a.closers, c)
		}
	}
	a.tracker = quota.New(counter, quota.Config{
		DailyLimit:  cfg.Quota.DailyLimit,
		MinuteLimit: cfg.Quota.MinuteLimit,
	}, a.logger)

	repo, err := openSQLite(cfg.Alerts.DBPath, alert.NewSQLiteRepository)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open alerts db %s: %w", cfg.Alerts.DBPath, err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo)

	if cfg.Provider.BaseURL != "" {
		f, err := pricing.NewSkyfaresAdapter(pricing.SkyfaresConfig{
			BaseURL:        cfg.Provider.BaseURL,
			APIKey:         cfg.Provider.APIKey,
			TimeoutSeconds: cfg.Provider.TimeoutSeconds,
			RatePerMinute:  cfg.Provider.RatePerMinute,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("configure fare provider: %w", err)
		}
		a.fetcher = f
		a.scope = "skyfares"
	} else {
		a.logger.Printf("no fare provider configured, using mock prices")
		a.fetcher = pricing.NewMockFetcher()
		a.scope = "mock"
	}
	a.closers = append(a.closers, a.fetcher)

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.Notify.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutSeconds)*time.Second)
	}

	a.engine = monitor.New(a.repo, a.fetcher, a.cache, a.tracker, dispatcher, monitor.Config{
		Workers:    cfg.Monitor.Workers,
		CacheTTL:   time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		CacheSWR:   time.Duration(cfg.Cache.SWRSeconds) * time.Second,
		Scope:      a.scope,
		DateBucket: cfg.Monitor.DateBucket,
	}, a.logger)

	return a, nil
}

// openSQLite ensures the parent directory exists before handing the path to
// one of the SQLite constructors.
func openSQLite[T any](path string, open func(string) (T, error)) (T, error) {
	var zero T
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return zero, err
		}
	}
	return open(path)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Printf("close: %v", err)
		}
	}
}
