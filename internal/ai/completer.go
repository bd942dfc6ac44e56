// Package ai is the completion-service collaborator used by the extractor.
//
// A Completer sends one prompt and returns the concatenated text of the
// reply. Two backends are provided: Anthropic Messages and any
// OpenAI-compatible chat completions endpoint. Both are wrapped by Guarded,
// which adds a circuit breaker and a concurrency limit. Nothing in this
// package retries; escalation to a larger context window is the caller's
// only retry.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"golang.org/x/sync/semaphore"
)

// Backend names accepted by Config.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Default models per backend. Extraction is a short structured judgment, so
// the small tier is enough.
const (
	ModelHaiku         = "claude-3-5-haiku-20241022"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// DefaultMaxTokens caps reply size when a Request leaves MaxTokens unset.
const DefaultMaxTokens = 1024

// ErrMissingAPIKey is returned by constructors when no credential was
// resolved. Credential lookup is the config package's job.
var ErrMissingAPIKey = errors.New("completion service API key not set")

// Request is one completion call. The per-call timeout travels in ctx.
type Request struct {
	Prompt    string
	System    string
	MaxTokens int
}

// Completer calls a text-completion service.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// GuardConfig holds circuit breaker and concurrency settings.
type GuardConfig struct {
	CircuitBreakerEnabled bool          // default: true
	FailureThreshold      int           // failures before opening (default: 5)
	SuccessThreshold      int           // half-open successes before closing (default: 2)
	OpenTimeout           time.Duration // how long to stay open (default: 30s)

	MaxConcurrentCalls int // default: 3, 0 = unlimited
}

// DefaultGuardConfig returns the default guard configuration.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
	}
}

// Config selects and configures a backend.
type Config struct {
	Provider string // ProviderAnthropic (default) or ProviderOpenAI
	APIKey   string
	BaseURL  string // optional endpoint override
	Model    string // default depends on Provider
	Guard    GuardConfig
	Logger   *slog.Logger
}

// New builds the configured backend wrapped in a Guarded completer.
func New(cfg Config) (*Guarded, error) {
	var (
		backend Completer
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderAnthropic:
		backend, err = NewAnthropicCompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderOpenAI:
		backend, err = NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewGuarded(backend, cfg.Guard, cfg.Logger), nil
}

// Guarded wraps a Completer with a circuit breaker and a concurrency limit.
// Safe for concurrent use.
type Guarded struct {
	next    Completer
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewGuarded wraps next. A zero GuardConfig disables both guards.
func NewGuarded(next Completer, cfg GuardConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guarded{next: next, logger: logger}
	if cfg.CircuitBreakerEnabled {
		g.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout, logger)
	}
	if cfg.MaxConcurrentCalls > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	return g
}

// Breaker returns the circuit breaker, or nil when disabled.
func (g *Guarded) Breaker() *CircuitBreaker {
	return g.breaker
}

// Complete acquires a concurrency slot, checks the breaker, and makes exactly
// one call to the wrapped completer.
func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("acquire completion slot: %w", err)
		}
		defer g.sem.Release(1)
	}

	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			state, failures, _ := g.breaker.Metrics()
			g.logger.Debug("completion blocked by circuit breaker",
				"state", state.String(), "failures", failures)
			return "", fmt.Errorf("completion: %w", err)
		}
	}

	start := time.Now()
	text, err := g.next.Complete(ctx, req)
	if err != nil {
		// Client errors such as a bad key do not say anything about the
		// endpoint's health.
		if g.breaker != nil && isTransientError(err) {
			g.breaker.RecordFailure()
		}
		return "", err
	}
	if g.breaker != nil {
		g.breaker.RecordSuccess()
	}

	g.logger.Debug("completion call",
		"duration", time.Since(start),
		"prompt_bytes", len(req.Prompt),
		"reply_bytes", len(text))
	return text, nil
}

// isTransientError reports whether err indicates an unhealthy endpoint
// rather than a bad request.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return isTransientStatus(anthropicErr.StatusCode)
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return isTransientStatus(openaiErr.StatusCode)
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"no such host",
		"eof",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
