package config

import (
	"fmt"
	"time"

	"github.com/steveyegge/vcwatch/internal/store"
)

// StoreConfig holds retention settings for the notification log
type StoreConfig struct {
	// Path is the JSONL file. Empty uses ~/.vcwatch/notifications.jsonl.
	Path string `yaml:"path"`

	// MaxRecords is the estimated record count that triggers compaction
	// Default: 5000, Range: 100-1000000
	MaxRecords int `yaml:"max_records"`

	// KeepRecords is how many of the newest records survive compaction
	// Must be < MaxRecords
	// Default: 2500
	KeepRecords int `yaml:"keep_records"`

	// CheckInterval is the number of appends between retention checks
	// Default: 50, Range: 1-10000
	CheckInterval int `yaml:"check_interval"`
}

// Validate checks if the configuration has valid values
func (c StoreConfig) Validate() error {
	if c.MaxRecords < 100 || c.MaxRecords > 1000000 {
		return fmt.Errorf("store.max_records must be between 100 and 1000000 (got %d)", c.MaxRecords)
	}
	if c.KeepRecords < 1 || c.KeepRecords >= c.MaxRecords {
		return fmt.Errorf("store.keep_records (%d) must be positive and < store.max_records (%d)",
			c.KeepRecords, c.MaxRecords)
	}
	if c.CheckInterval < 1 || c.CheckInterval > 10000 {
		return fmt.Errorf("store.check_interval must be between 1 and 10000 (got %d)", c.CheckInterval)
	}
	return nil
}

// Options converts to store options.
func (c StoreConfig) Options() store.Options {
	o := store.DefaultOptions()
	o.MaxRecords = c.MaxRecords
	o.KeepRecords = c.KeepRecords
	o.CheckInterval = c.CheckInterval
	return o
}

// ResolvedPath returns Path or the default location.
func (c StoreConfig) ResolvedPath() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	return store.DefaultPath()
}

// LedgerConfig holds settings for the persistent dedup ledger
type LedgerConfig struct {
	// Path enables the SQLite ledger so repeat suppression survives restarts
	// Empty keeps dedup state in memory
	Path string `yaml:"path"`

	// PruneAgeHours is how long an idle agent's entries are kept (in hours)
	// Default: 24, Range: 0-720 (0-30 days)
	// 0 = never prune
	PruneAgeHours int `yaml:"prune_age_hours"`
}

// Validate checks if the configuration has valid values
func (c LedgerConfig) Validate() error {
	if c.PruneAgeHours < 0 || c.PruneAgeHours > 720 {
		return fmt.Errorf("ledger.prune_age_hours must be between 0 and 720 (got %d)", c.PruneAgeHours)
	}
	return nil
}

// Enabled reports whether the ledger is configured.
func (c LedgerConfig) Enabled() bool {
	return c.Path != ""
}

// PruneAge returns the age threshold as a time.Duration
func (c LedgerConfig) PruneAge() time.Duration {
	return time.Duration(c.PruneAgeHours) * time.Hour
}
