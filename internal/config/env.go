package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides cfg from environment variables
//
// Environment variables:
//   - VCWATCH_PROJECT: project name shown in messages
//   - VCWATCH_POLL_INTERVAL: capture interval, Go duration (default: 2s)
//   - VCWATCH_STABILITY_THRESHOLD: identical captures before classifying (default: 3)
//   - VCWATCH_TAIL_LINES: classifier window in lines (default: 12)
//   - VCWATCH_RENOTIFY_AFTER: re-announce an unchanged prompt, Go duration (default: 0, never)
//   - VCWATCH_DRY_RUN: dispatch nothing (default: false)
//   - VCWATCH_AI_ENABLED: use the extractor when rules do not match (default: true)
//   - VCWATCH_AI_PROVIDER: anthropic or openai (default: anthropic)
//   - VCWATCH_AI_MODEL: model name override
//   - VCWATCH_AI_TIMEOUT_SECS: per-call timeout in seconds (default: 30)
//   - VCWATCH_STORE_PATH: notification log path
//   - VCWATCH_LEDGER_PATH: enable the SQLite dedup ledger at this path
//   - VCWATCH_NOTIFY_COMMAND: external messaging command
//   - VCWATCH_ADDR: HTTP feed listen address
//   - VCWATCH_LOG_LEVEL: DEBUG, INFO, WARN or ERROR
//   - VCWATCH_LOG_FILE: write logs to this file instead of stderr
//
// Returns an error if any environment variable has an invalid value.
func ApplyEnv(cfg *Config) error {
	parseEnvString("VCWATCH_PROJECT", &cfg.Project)
	if err := parseEnvDuration("VCWATCH_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return err
	}
	if err := parseEnvInt("VCWATCH_STABILITY_THRESHOLD", &cfg.StabilityThreshold); err != nil {
		return err
	}
	if err := parseEnvInt("VCWATCH_TAIL_LINES", &cfg.TailLines); err != nil {
		return err
	}
	if err := parseEnvDuration("VCWATCH_RENOTIFY_AFTER", &cfg.RenotifyAfter); err != nil {
		return err
	}
	if err := parseEnvBool("VCWATCH_DRY_RUN", &cfg.DryRun); err != nil {
		return err
	}
	if err := parseEnvBool("VCWATCH_AI_ENABLED", &cfg.AI.Enabled); err != nil {
		return err
	}
	parseEnvString("VCWATCH_AI_PROVIDER", &cfg.AI.Provider)
	parseEnvString("VCWATCH_AI_MODEL", &cfg.AI.Model)
	if err := parseEnvSeconds("VCWATCH_AI_TIMEOUT_SECS", &cfg.AI.Timeout); err != nil {
		return err
	}
	parseEnvString("VCWATCH_STORE_PATH", &cfg.Store.Path)
	parseEnvString("VCWATCH_LEDGER_PATH", &cfg.Ledger.Path)
	parseEnvString("VCWATCH_NOTIFY_COMMAND", &cfg.Notify.Command)
	parseEnvString("VCWATCH_ADDR", &cfg.Server.Addr)
	parseEnvString("VCWATCH_LOG_LEVEL", &cfg.Log.Level)
	parseEnvString("VCWATCH_LOG_FILE", &cfg.Log.File)
	return nil
}

func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a Go duration string such as "90s" or "5m"
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvSeconds parses a whole number of seconds
func parseEnvSeconds(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * time.Second
	return nil
}
