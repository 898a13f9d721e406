// Package config loads both the environment-derived runtime settings and
// the read-only YAML lookup tables the pipeline consults during
// enrichment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process's environment-derived settings.
type Config struct {
	DatabaseURL      string
	RedisURL         string
	AnthropicAPIKey  string
	AdzunaAppID      string
	AdzunaAppKey     string
	AnthropicModel   string
	LogLevel         string
	TablesDir        string
	FetchConcurrency int
	ClassifierUnitCostUSD float64
}

// Load reads required and optional environment variables, matching the
// teacher's plain os.Getenv-with-defaults shape.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	tablesDir := os.Getenv("CONFIG_TABLES_DIR")
	if tablesDir == "" {
		tablesDir = "config"
	}

	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}

	concurrency := 2
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FETCH_CONCURRENCY %q: %w", v, err)
		}
		concurrency = n
	}

	unitCost := 0.0008
	if v := os.Getenv("CLASSIFIER_UNIT_COST_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CLASSIFIER_UNIT_COST_USD %q: %w", v, err)
		}
		unitCost = f
	}

	return &Config{
		DatabaseURL:           dbURL,
		RedisURL:              os.Getenv("REDIS_URL"),
		AnthropicAPIKey:       anthropicKey,
		AdzunaAppID:           os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:          os.Getenv("ADZUNA_APP_KEY"),
		AnthropicModel:        model,
		LogLevel:              logLevel,
		TablesDir:             tablesDir,
		FetchConcurrency:      concurrency,
		ClassifierUnitCostUSD: unitCost,
	}, nil
}

// ResumeWindow parses --resume-hours into a duration; 0 disables resume.
func ResumeWindow(hours int) time.Duration {
	if hours <= 0 {
		return 0
	}
	return time.Duration(hours) * time.Hour
}
