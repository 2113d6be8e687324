// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Layering (defaults, file, env) lives in Load.
// - External errors must be wrapped with this package's sentinel kinds.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DeploymentTier selects the processing profile (see Tier).
	DeploymentTier string `koanf:"deployment_tier"`

	// InvocationBudget is the wall-clock ceiling of one advance call.
	InvocationBudget time.Duration `koanf:"invocation_budget"`
	// BudgetReserve is kept free at the end of the budget for persisting.
	BudgetReserve time.Duration `koanf:"budget_reserve"`

	// ReportRetention is the age past which reports are refused and purged.
	ReportRetention time.Duration `koanf:"report_retention"`
	// StaleAfter stops counting an in-progress report against admission
	// once it has not been touched for this long.
	StaleAfter time.Duration `koanf:"stale_after"`

	CollectionTTL   time.Duration `koanf:"collection_ttl"`
	PriceCurrentTTL time.Duration `koanf:"price_current_ttl"`

	// Minimum spacing between calls to each provider.
	MarketMinInterval  time.Duration `koanf:"market_min_interval"`
	HistoryMinInterval time.Duration `koanf:"history_min_interval"`
	PriceMinInterval   time.Duration `koanf:"price_min_interval"`

	ProviderTimeout    time.Duration `koanf:"provider_timeout"`
	ProviderMaxRetries int           `koanf:"provider_max_retries"`

	DASURL    string `koanf:"das_url"`
	MarketURL string `koanf:"market_url"`
	PriceURL  string `koanf:"price_url"`
	APIKey    string `koanf:"api_key"`

	// Classifier thresholds, in lamports.
	MinSaleLamports            int64 `koanf:"min_sale_lamports"`
	SignificantOutflowLamports int64 `koanf:"significant_outflow_lamports"`
	LargeOutflowLamports       int64 `koanf:"large_outflow_lamports"`
	UnusualOutflowLamports     int64 `koanf:"unusual_outflow_lamports"`

	// Store selects the report backend: memory, redis or postgres.
	Store       string `koanf:"store"`
	RedisAddr   string `koanf:"redis_addr"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// PriceStorePath enables SQLite persistence of historical prices.
	PriceStorePath string `koanf:"price_store_path"`

	// KafkaBrokers is a comma separated list; empty disables events.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// CleanupSchedule is a cron spec (with seconds) for the retention purge.
	CleanupSchedule string `koanf:"cleanup_schedule"`
}

const lamportsPerSOL = 1_000_000_000

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                   "info",
		LogFormat:                  "text",
		Addr:                       ":9080",
		DeploymentTier:             TierFree,
		InvocationBudget:           25 * time.Second,
		BudgetReserve:              5 * time.Second,
		ReportRetention:            7 * 24 * time.Hour,
		StaleAfter:                 15 * time.Minute,
		CollectionTTL:              10 * time.Minute,
		PriceCurrentTTL:            time.Minute,
		MarketMinInterval:          500 * time.Millisecond,
		HistoryMinInterval:         100 * time.Millisecond,
		PriceMinInterval:           1500 * time.Millisecond,
		ProviderTimeout:            10 * time.Second,
		ProviderMaxRetries:         3,
		DASURL:                     "http://localhost:9101",
		MarketURL:                  "http://localhost:9102",
		PriceURL:                   "http://localhost:9103",
		MinSaleLamports:            lamportsPerSOL / 50,  // 0.02 SOL
		SignificantOutflowLamports: lamportsPerSOL / 20,  // 0.05 SOL
		LargeOutflowLamports:       lamportsPerSOL,       // 1 SOL
		UnusualOutflowLamports:     5 * lamportsPerSOL,   // 5 SOL
		Store:                      "memory",
		KafkaTopic:                 "appraisal.report-events",
		CleanupSchedule:            "0 */15 * * * *",
	}
}

// Profile returns the tier profile selected by DeploymentTier.
func (c *Config) Profile() (Profile, error) {
	return LookupTier(c.DeploymentTier)
}
