package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix   = "APPRAISAL_"
	envFileKey  = "APPRAISAL_CONFIG"
	dotEnvFile  = ".env"
	storeMemory = "memory"
	storeRedis  = "redis"
	storePG     = "postgres"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if APPRAISAL_CONFIG is set
//  3. env (prefix APPRAISAL_), including values from an optional .env file
func Load(_ context.Context) (*Config, error) {
	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, dotEnvFile, err)
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// APPRAISAL_COLLECTION_TTL -> collection_ttl (flat keys matching koanf tags).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := c.Profile(); err != nil {
		return err
	}
	if c.InvocationBudget <= 0 {
		return fmt.Errorf("%w: invocation_budget must be positive", ErrInvalidConfig)
	}
	if c.BudgetReserve < 0 || c.BudgetReserve >= c.InvocationBudget {
		return fmt.Errorf("%w: budget_reserve must be within invocation_budget", ErrInvalidConfig)
	}
	if c.ReportRetention <= 0 || c.CollectionTTL <= 0 || c.PriceCurrentTTL <= 0 {
		return fmt.Errorf("%w: retention and ttl values must be positive", ErrInvalidConfig)
	}
	if c.MinSaleLamports <= 0 || c.SignificantOutflowLamports <= 0 {
		return fmt.Errorf("%w: classifier thresholds must be positive", ErrInvalidConfig)
	}
	if c.MinSaleLamports > c.LargeOutflowLamports ||
		c.SignificantOutflowLamports > c.LargeOutflowLamports ||
		c.LargeOutflowLamports > c.UnusualOutflowLamports {
		return fmt.Errorf("%w: classifier thresholds must be ordered min, significant <= large <= unusual", ErrInvalidConfig)
	}
	switch c.Store {
	case storeMemory:
	case storeRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr required for redis store", ErrInvalidConfig)
		}
	case storePG:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	return nil
}

// Brokers splits KafkaBrokers into a list, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
