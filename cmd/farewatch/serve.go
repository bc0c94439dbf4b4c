package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/farewatch/farewatch/internal/observ"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled sweeps and the admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", observ.Handler())
			mux.Handle("/healthz", observ.HealthHandler())
			mux.Handle("/livez", observ.Health())
			mux.Handle("/usage", a.usageHandler())

			srv := &http.Server{Addr: a.cfg.ListenAddr, Handler: mux}
			go func() {
				observ.Log("http_listening", map[string]any{"addr": a.cfg.ListenAddr})
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					a.logger.Printf("http server: %v", err)
				}
			}()

			go a.purgeLoop(ctx)

			interval := time.Duration(a.cfg.Monitor.SweepIntervalSeconds) * time.Second
			deadline := time.Duration(a.cfg.Monitor.DeadlineSeconds) * time.Second

			// First sweep right away, then on the interval.
			a.runSweep(ctx, deadline, "scheduled")

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					observ.Log("shutdown_started", nil)
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
					a.engine.Drain()
					return nil
				case <-ticker.C:
					a.runSweep(ctx, deadline, "scheduled")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "path to config file")
	return cmd
}

// runSweep bounds one sweep by the configured deadline. An aborted sweep is
// logged and the next tick tries again; serve never exits over it.
func (a *app) runSweep(ctx context.Context, deadline time.Duration, invokedBy string) {
	if ctx.Err() != nil {
		return
	}
	sweepCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	if _, err := a.engine.Run(sweepCtx, invokedBy); err != nil {
		a.logger.Printf("sweep aborted: %v", err)
	}
}

func (a *app) usageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := a.tracker.Stats(r.Context(), a.scope)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	})
}

// purgeLoop evicts fully expired entries so no store grows without bound:
// the in-process cache on every tick, plus the shared SQLite stores when
// configured.
func (a *app) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.Cache.CleanupIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.cache.Cleanup(); n > 0 {
				observ.Log("cache_cleaned", map[string]any{"entries": n})
			}
			if a.cacheSQL != nil {
				if n, err := a.cacheSQL.Purge(ctx); err == nil && n > 0 {
					observ.Log("cache_purged", map[string]any{"entries": n})
				}
			}
			if a.counterSQL != nil {
				if n, err := a.counterSQL.Purge(ctx); err == nil && n > 0 {
					observ.Log("counters_purged", map[string]any{"entries": n})
				}
			}
		}
	}
}
