package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	k := canonLabels(labels)
	m[k] += int64(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	k := canonLabels(labels)
	m[k] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// counterTotal sums a counter across all label sets. Caller holds reg.mu.
func counterTotal(name string) int64 {
	var total int64
	for _, count := range reg.counters[name] {
		total += count
	}
	return total
}

// Basic text/JSON dump for quick checks (not Prometheus format on purpose)
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus summarizes protection-layer health for the admin surface.
type HealthStatus struct {
	Status    string        `json:"status"`    // "healthy", "degraded"
	Timestamp string        `json:"timestamp"` // ISO 8601
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Metrics   HealthMetrics `json:"metrics"`
}

// HealthMetrics holds the key ratios the reporting surface reads.
type HealthMetrics struct {
	CacheHitRate     float64 `json:"cache_hit_rate"`
	CacheStaleReads  int64   `json:"cache_stale_reads"`
	SweepsCompleted  int64   `json:"sweeps_completed"`
	SweepsAborted    int64   `json:"sweeps_aborted"`
	AlertsTriggered  int64   `json:"alerts_triggered"`
	AlertsFailed     int64   `json:"alerts_failed"`
	AlertsSkipped    int64   `json:"alerts_skipped"`
	FetchesUpstream  int64   `json:"fetches_upstream"`
	QuotaUsedPct     float64 `json:"quota_used_pct"`
	StoreDegraded    bool    `json:"store_degraded"`
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

// HealthHandler reports overall health derived from the metrics registry.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()

		m := calculateHealthMetrics()
		status := "healthy"
		if m.StoreDegraded || m.SweepsAborted > 0 {
			status = "degraded"
		}

		health := HealthStatus{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Version:   version,
			Metrics:   m,
		}

		statusCode := http.StatusOK
		if health.Status == "degraded" {
			statusCode = http.StatusPartialContent // 206
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

// calculateHealthMetrics computes key ratios from raw telemetry. Caller holds reg.mu.
func calculateHealthMetrics() HealthMetrics {
	m := HealthMetrics{
		CacheStaleReads: counterTotal("cache_stale_read_total"),
		SweepsCompleted: counterTotal("monitor_run_completed_total"),
		SweepsAborted:   counterTotal("monitor_run_aborted_total"),
		AlertsTriggered: counterTotal("monitor_alert_triggered_total"),
		AlertsFailed:    counterTotal("monitor_alert_failed_total"),
		AlertsSkipped:   counterTotal("monitor_alert_skipped_total"),
		FetchesUpstream: counterTotal("fare_fetch_total"),
	}

	hits := counterTotal("cache_hit_total")
	misses := counterTotal("cache_miss_total")
	if hits+misses > 0 {
		m.CacheHitRate = float64(hits) / float64(hits+misses)
	}

	for _, v := range reg.gauges["quota_used_pct"] {
		m.QuotaUsedPct = v
		break
	}
	for _, v := range reg.gauges["shared_store_degraded"] {
		if v == 1 {
			m.StoreDegraded = true
		}
	}

	return m
}

// Simple liveness handler
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
