// Package config loads engine configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all tunables for the savings engine. Zero values are never
// used directly; Load applies the documented defaults.
type Config struct {
	// BatchLimit is the maximum number of rules selected per batch sweep.
	BatchLimit int

	// WorkerCount bounds concurrency inside one batch sweep.
	WorkerCount int

	// BatchInterval is how often the worker triggers a batch sweep.
	BatchInterval time.Duration

	// BackoffBase is the base retry delay; attempt n waits 2^n * BackoffBase.
	BackoffBase time.Duration

	// BackoffMax caps the retry delay.
	BackoffMax time.Duration

	// ProviderTimeout bounds every external call (transfers, transaction
	// fetches, notifications, balance updates).
	ProviderTimeout time.Duration

	// ClaimLease is how long a worker's claim on a rule remains valid.
	ClaimLease time.Duration

	// AnalysisWindowDays is the transaction window for income detection.
	AnalysisWindowDays int

	// MinConfidence is the cutoff below which income patterns are rejected.
	MinConfidence float64

	// MinIncomeAmount is the default minimum deposit considered income.
	MinIncomeAmount float64

	// SafetyBufferPercent is the default surplus safety buffer.
	SafetyBufferPercent float64

	// RetentionDays is how long audit records are kept before the monthly
	// retention job removes them.
	RetentionDays int

	// TransferProvider selects the transfer backend: "virtual" or "http".
	TransferProvider string

	// TransferEndpoint is the HTTP transfer provider base URL.
	TransferEndpoint string

	// PostgresDSN is the connection string for the rule store.
	PostgresDSN string

	// BigQueryProject and BigQueryDataset locate the audit/transaction tables.
	BigQueryProject string
	BigQueryDataset string

	// RedisAddr enables the income-pattern cache when non-empty.
	RedisAddr string

	// PatternCacheTTL bounds staleness of cached income patterns.
	PatternCacheTTL time.Duration

	// ReportBucket is the GCS bucket for archived summary reports.
	ReportBucket string

	// NotionToken and NotionDatabaseID enable the Notion summary dispatcher
	// when both are set.
	NotionToken      string
	NotionDatabaseID string

	// HTTPPort is the API server listen port.
	HTTPPort string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is fine; env vars may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		BatchLimit:          envInt("BATCH_LIMIT", 100),
		WorkerCount:         envInt("WORKER_COUNT", 8),
		BatchInterval:       envDuration("BATCH_INTERVAL", time.Hour),
		BackoffBase:         envDuration("BACKOFF_BASE", time.Hour),
		BackoffMax:          envDuration("BACKOFF_MAX", 24*time.Hour),
		ProviderTimeout:     envDuration("PROVIDER_TIMEOUT", 30*time.Second),
		ClaimLease:          envDuration("CLAIM_LEASE", 5*time.Minute),
		AnalysisWindowDays:  envInt("ANALYSIS_WINDOW_DAYS", 90),
		MinConfidence:       envFloat("MIN_CONFIDENCE", 0.7),
		MinIncomeAmount:     envFloat("MIN_INCOME_AMOUNT", 100),
		SafetyBufferPercent: envFloat("SAFETY_BUFFER_PERCENT", 10),
		RetentionDays:       envInt("RETENTION_DAYS", 730),
		TransferProvider:    envString("TRANSFER_PROVIDER", "virtual"),
		TransferEndpoint:    os.Getenv("TRANSFER_ENDPOINT"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		BigQueryProject:     os.Getenv("BIGQUERY_PROJECT"),
		BigQueryDataset:     envString("BIGQUERY_DATASET", "savings"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		PatternCacheTTL:     envDuration("PATTERN_CACHE_TTL", 6*time.Hour),
		ReportBucket:        os.Getenv("REPORT_BUCKET"),
		NotionToken:         os.Getenv("NOTION_TOKEN"),
		NotionDatabaseID:    os.Getenv("NOTION_DATABASE_ID"),
		HTTPPort:            envString("HTTP_PORT", "8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BatchLimit <= 0 {
		return fmt.Errorf("config: BATCH_LIMIT must be positive, got %d", c.BatchLimit)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("config: WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("config: backoff window invalid (base %s, max %s)", c.BackoffBase, c.BackoffMax)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: MIN_CONFIDENCE must be in [0,1], got %g", c.MinConfidence)
	}
	if c.TransferProvider != "virtual" && c.TransferProvider != "http" {
		return fmt.Errorf("config: TRANSFER_PROVIDER must be virtual or http, got %q", c.TransferProvider)
	}
	if c.TransferProvider == "http" && c.TransferEndpoint == "" {
		return fmt.Errorf("config: TRANSFER_ENDPOINT required when TRANSFER_PROVIDER=http")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
