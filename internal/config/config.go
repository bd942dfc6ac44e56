// Package config loads vcwatch settings from ~/.vcwatch/config.yaml,
// applies VCWATCH_* environment overrides, and validates the result.
//
// A missing file is not an error; defaults apply. Credentials are not
// required here: they are resolved on demand through a provider chain (see
// credentials.go) by whichever command needs the completion service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/vcwatch/internal/ai"
	"github.com/steveyegge/vcwatch/internal/extract"
	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/pipeline"
	"github.com/steveyegge/vcwatch/internal/stability"
	"github.com/steveyegge/vcwatch/internal/store"
	"github.com/steveyegge/vcwatch/internal/urgency"
	"github.com/steveyegge/vcwatch/internal/waitpattern"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Channel kinds.
const (
	KindMessaging = "messaging"
	KindDashboard = "dashboard"
)

// Config is the full vcwatch configuration.
type Config struct {
	Project string `yaml:"project"`

	// PollInterval is how often watch captures terminals.
	// Default: 2s
	PollInterval time.Duration `yaml:"poll_interval"`

	// StabilityThreshold is how many identical captures count as stable.
	// Default: 3
	StabilityThreshold int `yaml:"stability_threshold"`

	// TailLines is the classifier window.
	// Default: 12
	TailLines int `yaml:"tail_lines"`

	// SnapshotLines is how much terminal tail is kept with a logged record.
	// Default: 20
	SnapshotLines int `yaml:"snapshot_lines"`

	// RenotifyAfter re-announces an unchanged prompt after this long. Zero
	// announces it once.
	RenotifyAfter time.Duration `yaml:"renotify_after"`

	DryRun bool `yaml:"dry_run"`

	AI     AIConfig     `yaml:"ai"`
	Store  StoreConfig  `yaml:"store"`
	Ledger LedgerConfig `yaml:"ledger"`
	Notify NotifyConfig `yaml:"notify"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// AIConfig configures the extractor and its completion backend.
type AIConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	ContextSizes  []int         `yaml:"context_sizes"`
	MaxIterations int           `yaml:"max_iterations"`
	MaxTokens     int           `yaml:"max_tokens"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// NotifyConfig configures delivery.
type NotifyConfig struct {
	// Command is the external messaging tool, invoked as
	// `<command> message send --channel <type> --target <id> --message <text>`.
	Command  string          `yaml:"command"`
	Timeout  time.Duration   `yaml:"timeout"`
	Async    bool            `yaml:"async"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one outward channel. The durable log channel is
// always present and is not listed here.
type ChannelConfig struct {
	Name          string  `yaml:"name"`
	Kind          string  `yaml:"kind"` // messaging (default) or dashboard
	ChannelType   string  `yaml:"channel_type"`
	Target        string  `yaml:"target"`
	MinUrgency    string  `yaml:"min_urgency"`
	RatePerMinute float64 `yaml:"rate_per_minute"`
	Burst         int     `yaml:"burst"`
}

// ServerConfig configures the HTTP feed.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	ex := extract.DefaultConfig()
	so := store.DefaultOptions()
	return Config{
		PollInterval:       2 * time.Second,
		StabilityThreshold: stability.DefaultThreshold,
		TailLines:          waitpattern.DefaultTailLines,
		SnapshotLines:      20,
		AI: AIConfig{
			Enabled:       true,
			Provider:      ai.ProviderAnthropic,
			Timeout:       ex.Timeout,
			ContextSizes:  ex.ContextSizes,
			MaxIterations: ex.MaxIterations,
			MaxTokens:     ex.MaxTokens,
			MaxConcurrent: ai.DefaultGuardConfig().MaxConcurrentCalls,
		},
		Store: StoreConfig{
			MaxRecords:    so.MaxRecords,
			KeepRecords:   so.KeepRecords,
			CheckInterval: so.CheckInterval,
		},
		Ledger: LedgerConfig{PruneAgeHours: 24},
		Notify: NotifyConfig{
			Timeout: notify.DefaultSendTimeout,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8787"},
		Log:    LogConfig{Level: "INFO"},
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll_interval too small (got %v, min 100ms)", c.PollInterval)
	}
	if c.StabilityThreshold < 1 {
		return fmt.Errorf("stability_threshold must be positive (got %d)", c.StabilityThreshold)
	}
	if c.TailLines < 1 {
		return fmt.Errorf("tail_lines must be positive (got %d)", c.TailLines)
	}
	if c.SnapshotLines < 0 {
		return fmt.Errorf("snapshot_lines cannot be negative (got %d)", c.SnapshotLines)
	}
	if c.RenotifyAfter < 0 {
		return fmt.Errorf("renotify_after cannot be negative (got %v)", c.RenotifyAfter)
	}

	switch strings.ToLower(c.AI.Provider) {
	case ai.ProviderAnthropic, ai.ProviderOpenAI:
	default:
		return fmt.Errorf("ai.provider must be %q or %q (got %q)", ai.ProviderAnthropic, ai.ProviderOpenAI, c.AI.Provider)
	}
	if c.AI.MaxConcurrent < 0 {
		return fmt.Errorf("ai.max_concurrent cannot be negative (got %d)", c.AI.MaxConcurrent)
	}
	if err := c.ExtractConfig().Validate(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}

	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive (got %v)", c.Notify.Timeout)
	}
	names := make(map[string]bool)
	for i, ch := range c.Notify.Channels {
		if ch.Kind != "" && ch.Kind != KindMessaging && ch.Kind != KindDashboard {
			return fmt.Errorf("notify.channels[%d].kind must be %q or %q (got %q)", i, KindMessaging, KindDashboard, ch.Kind)
		}
		if ch.ChannelType == "" {
			return fmt.Errorf("notify.channels[%d].channel_type is required", i)
		}
		if ch.RatePerMinute < 0 {
			return fmt.Errorf("notify.channels[%d].rate_per_minute cannot be negative (got %v)", i, ch.RatePerMinute)
		}
		name := ch.displayName()
		if names[name] {
			return fmt.Errorf("notify.channels[%d]: duplicate channel name %q", i, name)
		}
		names[name] = true
	}
	if len(c.Notify.Channels) > 0 && c.Notify.Command == "" {
		return fmt.Errorf("notify.command is required when channels are configured")
	}

	switch strings.ToUpper(c.Log.Level) {
	case "", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("log.level must be DEBUG, INFO, WARN or ERROR (got %q)", c.Log.Level)
	}
	return nil
}

func (ch ChannelConfig) displayName() string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ChannelType
}

// DefaultPath returns ~/.vcwatch/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".vcwatch", "config.yaml"), nil
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path uses DefaultPath. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing YAML %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ExtractConfig maps the ai section to the extractor configuration.
func (c Config) ExtractConfig() extract.Config {
	ex := extract.DefaultConfig()
	ex.ContextSizes = c.AI.ContextSizes
	ex.MaxIterations = c.AI.MaxIterations
	ex.Timeout = c.AI.Timeout
	ex.MaxTokens = c.AI.MaxTokens
	return ex
}

// PipelineConfig maps the top-level settings to the pipeline.
func (c Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		StabilityThreshold: c.StabilityThreshold,
		TailLines:          c.TailLines,
		SnapshotLines:      c.SnapshotLines,
		Project:            c.Project,
		Async:              c.Notify.Async,
	}
}

// AIBackend returns the completion backend configuration. The API key and
// base URL are resolved through the credential chain, so the key may still
// be empty; ai.New reports that as ai.ErrMissingAPIKey.
func (c Config) AIBackend(creds *Credentials) ai.Config {
	guard := ai.DefaultGuardConfig()
	guard.MaxConcurrentCalls = c.AI.MaxConcurrent
	return ai.Config{
		Provider: strings.ToLower(c.AI.Provider),
		APIKey:   creds.APIKey(c.AI.Provider, c.AI.APIKey),
		BaseURL:  creds.BaseURL(c.AI.Provider, c.AI.BaseURL),
		Model:    c.AI.Model,
		Guard:    guard,
	}
}

// Messaging converts a messaging channel entry.
func (ch ChannelConfig) Messaging() notify.MessagingConfig {
	return notify.MessagingConfig{
		Name:          ch.displayName(),
		ChannelType:   ch.ChannelType,
		Target:        ch.Target,
		MinUrgency:    urgency.Parse(ch.MinUrgency),
		RatePerMinute: ch.RatePerMinute,
		Burst:         ch.Burst,
	}
}

// Dashboard converts a dashboard channel entry.
func (ch ChannelConfig) Dashboard() notify.DashboardConfig {
	return notify.DashboardConfig{
		Name:        ch.displayName(),
		ChannelType: ch.ChannelType,
		Target:      ch.Target,
	}
}
