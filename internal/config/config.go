package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Cache struct {
	TTLSeconds             int    `yaml:"ttl_seconds"`
	SWRSeconds             int    `yaml:"swr_seconds"`
	StorePath              string `yaml:"store_path"` // shared SQLite store; empty = memory only
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
}

type Quota struct {
	DailyLimit  int64  `yaml:"daily_limit"`
	MinuteLimit int64  `yaml:"minute_limit"`
	StorePath   string `yaml:"store_path"` // shared SQLite counters; empty = local only
}

type Provider struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RatePerMinute  int    `yaml:"rate_per_minute"`
}

type Monitor struct {
	Workers              int    `yaml:"workers"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	DeadlineSeconds      int    `yaml:"deadline_seconds"`
	DateBucket           string `yaml:"date_bucket"` // granularity of the cache-key date, e.g. "2006-01-02"
}

type Notify struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Alerts struct {
	DBPath string `yaml:"db_path"`
}

type Root struct {
	ListenAddr string   `yaml:"listen_addr"`
	Cache      Cache    `yaml:"cache"`
	Quota      Quota    `yaml:"quota"`
	Provider   Provider `yaml:"provider"`
	Monitor    Monitor  `yaml:"monitor"`
	Notify     Notify   `yaml:"notify"`
	Alerts     Alerts   `yaml:"alerts"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}

	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 600
	}
	if c.Cache.SWRSeconds == 0 {
		c.Cache.SWRSeconds = 1800
	}
	if c.Cache.CleanupIntervalSeconds == 0 {
		c.Cache.CleanupIntervalSeconds = 60
	}

	if c.Quota.DailyLimit == 0 {
		c.Quota.DailyLimit = 500
	}
	if c.Quota.MinuteLimit == 0 {
		c.Quota.MinuteLimit = 10
	}

	if c.Provider.TimeoutSeconds == 0 {
		c.Provider.TimeoutSeconds = 10
	}
	if c.Provider.RatePerMinute == 0 {
		c.Provider.RatePerMinute = 30
	}

	if c.Monitor.Workers == 0 {
		c.Monitor.Workers = 5
	}
	if c.Monitor.SweepIntervalSeconds == 0 {
		c.Monitor.SweepIntervalSeconds = 900
	}
	if c.Monitor.DeadlineSeconds == 0 {
		c.Monitor.DeadlineSeconds = 300
	}
	if c.Monitor.DateBucket == "" {
		c.Monitor.DateBucket = "2006-01-02"
	}

	if c.Notify.TimeoutSeconds == 0 {
		c.Notify.TimeoutSeconds = 5
	}

	if c.Alerts.DBPath == "" {
		c.Alerts.DBPath = "data/alerts.db"
	}

	return c, nil
}
