package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/steveyegge/vcwatch/internal/ai"
	"github.com/steveyegge/vcwatch/internal/dedup"
	"github.com/steveyegge/vcwatch/internal/extract"
	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/stability"
	"github.com/steveyegge/vcwatch/internal/urgency"
	"github.com/steveyegge/vcwatch/internal/waitpattern"
)

// Dedup scopes.
const (
	ScopeContent  = "content"
	ScopeSemantic = "semantic"
)

// Event types handed to the urgency classifier.
const (
	EventPermissionRequest = "permission_request"
	EventWaitingForInput   = "waiting_for_input"
	EventNotification      = "notification"
)

// unknownContext marks an undecided agent as idle so it lands at Medium.
const unknownContext = `{"notification_type":"idle_prompt"}`

// Extractor is the part of extract.Extractor the pipeline needs.
type Extractor interface {
	Extract(ctx context.Context, agentID, snapshot string) extract.Result
}

// Config configures a Pipeline.
type Config struct {
	StabilityThreshold int
	TailLines          int

	// SnapshotLines is how much of the terminal tail is attached to a
	// notification for the durable log. Zero attaches nothing.
	SnapshotLines int

	Project string

	// Async dispatches without waiting for channel transports.
	Async bool
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		StabilityThreshold: stability.DefaultThreshold,
		TailLines:          waitpattern.DefaultTailLines,
		SnapshotLines:      20,
	}
}

// Pipeline runs snapshots through detection and dispatch. Safe for
// concurrent use across agents.
type Pipeline struct {
	cfg        Config
	detector   *stability.Detector
	classifier *waitpattern.Classifier
	extractor  Extractor
	tracker    dedup.Tracker
	dispatcher *notify.Dispatcher
	logger     *slog.Logger

	mu          sync.Mutex
	extractions map[string]extraction
}

// extraction is the last extractor result for an agent and the content key
// of the snapshot it was computed from.
type extraction struct {
	key    string
	result extract.Result
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor enables AI extraction when no rule matches.
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithTracker replaces the in-memory repeat tracker.
func WithTracker(t dedup.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline dispatching through d.
func New(cfg Config, d *notify.Dispatcher, opts ...Option) *Pipeline {
	if cfg.TailLines <= 0 {
		cfg.TailLines = waitpattern.DefaultTailLines
	}
	p := &Pipeline{
		cfg:         cfg,
		detector:    stability.NewDetector(cfg.StabilityThreshold),
		classifier:  waitpattern.NewClassifier(waitpattern.Config{TailLines: cfg.TailLines}),
		dispatcher:  d,
		extractions: make(map[string]extraction),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracker == nil {
		p.tracker = dedup.NewMemoryTracker(0)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Observe runs one snapshot for agentID through the pipeline. Only
// dispatcher-independent failures are returned as errors; channel failures
// are reported in Decision.Deliveries.
func (p *Pipeline) Observe(ctx context.Context, agentID, snapshot string) (Decision, error) {
	d := Decision{AgentID: agentID}

	if !p.detector.IsStable(agentID, snapshot) {
		return d, nil
	}
	d.Stable = true

	d.Verdict = p.classifier.Classify(snapshot)
	switch {
	case d.Verdict.Pattern == waitpattern.Unknown:
		d.Status = Unknown
	case d.Verdict.IsWaiting:
		d.Status = Waiting
	case p.extractor != nil:
		res := p.extract(ctx, agentID, snapshot)
		d.Extraction = &res
		switch res.Outcome {
		case extract.OutcomeSuccess:
			d.Status = Waiting
		case extract.OutcomeProcessing:
			d.Status = Processing
		default:
			d.Status = Unknown
		}
	default:
		d.Status = Processing
	}

	if !d.Status.ShouldNotify() {
		p.logger.Debug("agent processing", "agent", agentID)
		return d, nil
	}

	d.Key = dedup.Key(ai.LastLines(snapshot, p.cfg.TailLines))
	repeat, err := p.isRepeat(ctx, agentID, d)
	if err != nil {
		return d, err
	}
	if repeat {
		d.Repeat = true
		p.logger.Debug("suppressed repeat notification", "agent", agentID, "key", d.Key)
		return d, nil
	}

	d.Event, d.Urgency = p.classifyUrgency(d)
	msg := p.buildMessage(agentID, snapshot, d)
	d.Message = msg

	if p.cfg.Async {
		p.dispatcher.SendAsync(msg)
	} else {
		d.Deliveries = p.dispatcher.Send(ctx, msg)
	}

	p.logger.Info("agent needs attention",
		"agent", agentID,
		"status", d.Status.String(),
		"pattern", d.Verdict.Pattern.String(),
		"urgency", d.Urgency.String(),
		"message_id", msg.ID)
	return d, nil
}

// extract runs the extractor once per distinct snapshot. While an agent's
// content is unchanged the previous result is reused.
func (p *Pipeline) extract(ctx context.Context, agentID, snapshot string) extract.Result {
	key := dedup.Key(snapshot)

	p.mu.Lock()
	cached, ok := p.extractions[agentID]
	p.mu.Unlock()
	if ok && cached.key == key {
		p.logger.Debug("reusing extraction", "agent", agentID, "outcome", cached.result.Outcome.String())
		return cached.result
	}

	res := p.extractor.Extract(ctx, agentID, snapshot)

	p.mu.Lock()
	p.extractions[agentID] = extraction{key: key, result: res}
	p.mu.Unlock()
	return res
}

// isRepeat checks the content key, then the semantic key of an extracted
// message. Both histories are updated.
func (p *Pipeline) isRepeat(ctx context.Context, agentID string, d Decision) (bool, error) {
	repeat, err := p.tracker.Observe(ctx, agentID, ScopeContent, d.Key)
	if err != nil {
		return false, fmt.Errorf("failed to check content key for %s: %w", agentID, err)
	}

	if d.Extraction != nil && d.Extraction.Message != nil && d.Extraction.Message.Fingerprint != "" {
		semRepeat, err := p.tracker.Observe(ctx, agentID, ScopeSemantic, semanticKey(d.Extraction.Message))
		if err != nil {
			return false, fmt.Errorf("failed to check fingerprint for %s: %w", agentID, err)
		}
		repeat = repeat || semRepeat
	}
	return repeat, nil
}

// semanticKey combines the model's fingerprint with the extracted question
// text; both must match for a semantic repeat.
func semanticKey(m *extract.ExtractedMessage) string {
	question := dedup.Normalize(m.Content + "\n" + strings.Join(m.Options, "\n"))
	return dedup.HashHex(m.Fingerprint + "\n" + question)
}

func (p *Pipeline) classifyUrgency(d Decision) (string, urgency.Level) {
	switch {
	case d.Status == Unknown:
		return EventNotification, urgency.Classify(EventNotification, unknownContext)
	case d.Verdict.Pattern == waitpattern.PermissionRequest:
		return EventPermissionRequest, urgency.Classify(EventPermissionRequest, "")
	case d.Extraction != nil && d.Extraction.Message != nil &&
		d.Extraction.Message.MessageType == extract.TypePermission:
		return EventPermissionRequest, urgency.Classify(EventPermissionRequest, "")
	default:
		return EventWaitingForInput, urgency.Classify(EventWaitingForInput, "")
	}
}

func (p *Pipeline) buildMessage(agentID, snapshot string, d Decision) *notify.Message {
	msg := notify.NewMessage(agentID, content(d), d.Urgency, d.Event)
	msg.Payload = d.payload()
	msg.Metadata.Project = p.cfg.Project
	msg.Metadata.Detail = detail(d)
	if p.cfg.SnapshotLines > 0 {
		msg.Metadata.Snapshot = dedup.StripANSI(ai.LastLines(snapshot, p.cfg.SnapshotLines))
	}
	return msg
}

func content(d Decision) string {
	if d.Extraction != nil && d.Extraction.Message != nil {
		m := d.Extraction.Message
		if len(m.Options) == 0 {
			return m.Content
		}
		return m.Content + "\n" + strings.Join(m.Options, "\n")
	}
	if d.Status == Unknown {
		if d.Extraction != nil && d.Extraction.Reason != "" {
			return "Agent status unclear: " + d.Extraction.Reason
		}
		return "Agent status unclear, it may need attention"
	}
	if d.Verdict.Line != "" {
		return d.Verdict.Line
	}
	return "Agent is waiting for input"
}

func detail(d Decision) string {
	if d.Extraction != nil {
		if m := d.Extraction.Message; m != nil && m.MessageType != "" {
			return m.MessageType
		}
		return d.Extraction.Outcome.String()
	}
	return d.Verdict.Pattern.String()
}

// Forget discards all state for agentID after it is removed. An extraction
// already in flight for it is not interrupted.
func (p *Pipeline) Forget(ctx context.Context, agentID string) error {
	p.detector.Clear(agentID)

	p.mu.Lock()
	delete(p.extractions, agentID)
	p.mu.Unlock()

	if err := p.tracker.Forget(ctx, agentID); err != nil {
		return fmt.Errorf("failed to forget %s: %w", agentID, err)
	}
	return nil
}
