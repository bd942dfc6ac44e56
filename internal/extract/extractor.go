package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/steveyegge/vcwatch/internal/ai"
	"github.com/steveyegge/vcwatch/internal/dedup"
)

// Config holds configuration for the adaptive extractor
type Config struct {
	// ContextSizes are the trailing-line window sizes to try, smallest first.
	// Default: 20, 50, 120
	ContextSizes []int

	// MaxIterations caps completion calls per extraction. Windows beyond the
	// cap are never tried.
	// Default: len(ContextSizes)
	MaxIterations int

	// Timeout applies to each completion call separately.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxTokens caps the size of each reply.
	// Default: 512
	MaxTokens int

	// MaxPromptBytes bounds the terminal text sent per call. The window is cut
	// from the front on a character boundary.
	// Default: 16 KiB
	MaxPromptBytes int
}

// DefaultConfig returns the default extractor configuration
func DefaultConfig() Config {
	return Config{
		ContextSizes:   []int{20, 50, 120},
		MaxIterations:  3,
		Timeout:        30 * time.Second,
		MaxTokens:      512,
		MaxPromptBytes: 16 * 1024,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if len(c.ContextSizes) == 0 {
		return fmt.Errorf("context_sizes must not be empty")
	}
	prev := 0
	for i, n := range c.ContextSizes {
		if n <= 0 {
			return fmt.Errorf("context_sizes[%d] must be positive (got %d)", i, n)
		}
		if n <= prev {
			return fmt.Errorf("context_sizes must be strictly increasing (got %d after %d)", n, prev)
		}
		prev = n
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive (got %d)", c.MaxIterations)
	}
	if c.MaxIterations > 10 {
		return fmt.Errorf("max_iterations too large (got %d, max 10)", c.MaxIterations)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %v)", c.Timeout)
	}
	if c.Timeout > 5*time.Minute {
		return fmt.Errorf("timeout too large (got %v, max 5 minutes)", c.Timeout)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive (got %d)", c.MaxTokens)
	}
	if c.MaxPromptBytes < 256 {
		return fmt.Errorf("max_prompt_bytes too small (got %d, min 256)", c.MaxPromptBytes)
	}
	return nil
}

// Extractor runs the escalation protocol against a Completer. Safe for
// concurrent use; it holds no per-agent state.
type Extractor struct {
	completer ai.Completer
	cfg       Config
	metrics   MetricsCollector
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMetrics attaches a metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(e *Extractor) { e.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an extractor. cfg must pass Validate.
func New(completer ai.Completer, cfg Config, opts ...Option) (*Extractor, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extractor config: %w", err)
	}
	e := &Extractor{completer: completer, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// step is the verdict on one iteration.
type step int

const (
	stepContinue step = iota
	stepStop
)

// run is the mutable state of one Extract call.
type run struct {
	best            *ExtractedMessage
	attempts        int
	transportErrors int
	lastErr         error
	sawLowScore     bool
	sawParseError   bool
	lastParseError  bool
	final           *Result
}

// Extract escalates through the configured windows until a response is
// accepted, the agent is reported busy, or the windows run out. It never
// returns an error; every failure mode is a Result outcome.
func (e *Extractor) Extract(ctx context.Context, agentID, snapshot string) Result {
	start := time.Now()
	sizes := e.cfg.ContextSizes
	if len(sizes) > e.cfg.MaxIterations {
		sizes = sizes[:e.cfg.MaxIterations]
	}

	r := &run{}
	prevWindow := ""
	for i, lines := range sizes {
		if err := ctx.Err(); err != nil {
			r.lastErr = err
			break
		}

		window := ai.SafeTail(ai.LastLines(snapshot, lines), e.cfg.MaxPromptBytes)
		if i > 0 && window == prevWindow {
			// Snapshot is shorter than this window; a larger one adds nothing.
			e.logger.Debug("extraction window exhausted", "agent", agentID, "lines", lines)
			break
		}
		prevWindow = window

		if e.iterate(ctx, agentID, i+1, lines, window, r) == stepStop {
			break
		}
	}

	res := r.resolve()
	res.Iterations = r.attempts

	if e.metrics != nil {
		conf := 0.0
		if res.Message != nil {
			conf = res.Message.Confidence
		}
		e.metrics.RecordExtraction(agentID, &ExtractionMetrics{
			Outcome:       res.Outcome,
			Iterations:    r.attempts,
			TotalDuration: time.Since(start),
			Confidence:    conf,
		})
	}
	e.logger.Debug("extraction finished",
		"agent", agentID,
		"outcome", res.Outcome.String(),
		"iterations", r.attempts,
		"reason", res.Reason)
	return res
}

// iterate performs one completion call and folds its outcome into r.
func (e *Extractor) iterate(ctx context.Context, agentID string, n, lines int, window string, r *run) step {
	r.attempts++
	r.lastParseError = false
	im := &IterationMetrics{Iteration: n, WindowLines: lines}
	prompt := buildPrompt(window, lines)
	im.PromptBytes = len(prompt)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	callStart := time.Now()
	text, err := e.completer.Complete(callCtx, ai.Request{
		Prompt:    prompt,
		System:    systemInstruction,
		MaxTokens: e.cfg.MaxTokens,
	})
	cancel()
	im.Duration = time.Since(callStart)
	defer e.record(agentID, im)

	if err != nil {
		r.transportErrors++
		r.lastErr = err
		im.Outcome = IterTransportError
		im.Err = err.Error()
		e.logger.Debug("extraction call failed", "agent", agentID, "iteration", n, "error", err)
		return stepContinue
	}

	parsed := ai.Parse[Response](text, ai.ParseOptions{Context: "extract"})
	if !parsed.Success {
		r.sawParseError = true
		r.lastParseError = true
		im.Outcome = IterParseError
		im.Err = parsed.Error
		return stepContinue
	}
	resp := parsed.Data

	if resp.Processing() {
		im.Outcome = IterProcessing
		r.final = &Result{Outcome: OutcomeProcessing}
		return stepStop
	}

	score := Assess(resp)
	im.Confidence = score
	msg := toMessage(resp, score)

	switch {
	case msg.Content != "" && (resp.ContextComplete || score >= HighConfidence):
		im.Outcome = IterAccepted
		r.final = &Result{Outcome: OutcomeSuccess, Message: msg}
		return stepStop
	case score < LowConfidence:
		im.Outcome = IterLowConfidence
		r.sawLowScore = true
		return stepContinue
	default:
		im.Outcome = IterCandidate
		if r.best == nil || score > r.best.Confidence {
			r.best = msg
		}
		return stepContinue
	}
}

func (e *Extractor) record(agentID string, im *IterationMetrics) {
	if e.metrics != nil {
		e.metrics.RecordIteration(agentID, im)
	}
}

// resolve picks the final outcome once no more windows will be tried.
func (r *run) resolve() Result {
	if r.final != nil {
		return *r.final
	}
	if r.best != nil {
		return Result{Outcome: OutcomeSuccess, Message: r.best}
	}
	if r.attempts == 0 || r.transportErrors == r.attempts {
		reason := "no completion call made"
		if r.lastErr != nil {
			reason = r.lastErr.Error()
		}
		return Result{Outcome: OutcomeError, Reason: reason}
	}
	if r.lastParseError {
		return Result{Outcome: OutcomeFailed, Reason: "unparseable completion response"}
	}
	if r.sawLowScore {
		return Result{Outcome: OutcomeNeedMoreContext}
	}
	if r.sawParseError {
		return Result{Outcome: OutcomeFailed, Reason: "unparseable completion response"}
	}
	return Result{Outcome: OutcomeFailed, Reason: "no usable response"}
}

func toMessage(resp Response, score float64) *ExtractedMessage {
	question := strings.TrimSpace(resp.Question)

	options := make([]string, 0, len(resp.Options))
	for _, o := range resp.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}

	msgType := strings.ToLower(strings.TrimSpace(resp.MessageType))
	if msgType == "" {
		msgType = TypeInput
		if len(options) >= 2 {
			msgType = TypeChoice
		}
	}

	fingerprint := strings.TrimSpace(resp.Fingerprint)
	if fingerprint == "" {
		fingerprint = dedup.Key(question + "\n" + strings.Join(options, "\n"))
	}

	return &ExtractedMessage{
		Content:         question,
		Options:         options,
		Fingerprint:     fingerprint,
		ContextComplete: resp.ContextComplete,
		MessageType:     msgType,
		IsDecision: resp.IsDecision ||
			msgType == TypeChoice || msgType == TypeConfirmation || msgType == TypePermission,
		Confidence: score,
	}
}
