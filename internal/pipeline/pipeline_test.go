package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vcwatch/internal/extract"
	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/urgency"
	"github.com/steveyegge/vcwatch/internal/waitpattern"
)

type captureChannel struct {
	mu       sync.Mutex
	messages []*notify.Message
	async    chan *notify.Message
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) ShouldSend(*notify.Message) bool { return true }

func (c *captureChannel) Send(_ context.Context, msg *notify.Message) notify.SendResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return notify.Sent()
}

func (c *captureChannel) SendAsync(msg *notify.Message) {
	if c.async != nil {
		c.async <- msg
	}
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type stubExtractor struct {
	results []extract.Result
	calls   int
}

func (s *stubExtractor) Extract(context.Context, string, string) extract.Result {
	r := s.results[s.calls%len(s.results)]
	s.calls++
	return r
}

func newTestPipeline(t *testing.T, threshold int, opts ...Option) (*Pipeline, *captureChannel) {
	t.Helper()
	ch := &captureChannel{}
	cfg := DefaultConfig()
	cfg.StabilityThreshold = threshold
	cfg.Project = "vcwatch"
	return New(cfg, notify.NewDispatcher(nil, ch), opts...), ch
}

func TestObserve_WaitsForStability(t *testing.T) {
	ctx := context.Background()
	p, ch := newTestPipeline(t, 3)
	snap := "Running tests...\nProceed? [y/n]"

	for i := 0; i < 2; i++ {
		d, err := p.Observe(ctx, "agent-1", snap)
		require.NoError(t, err)
		assert.False(t, d.Stable)
		assert.False(t, d.Notified())
	}

	d, err := p.Observe(ctx, "agent-1", snap)
	require.NoError(t, err)
	assert.True(t, d.Stable)
	assert.Equal(t, Waiting, d.Status)
	assert.Equal(t, waitpattern.Confirmation, d.Verdict.Pattern)
	assert.Equal(t, EventWaitingForInput, d.Event)
	assert.Equal(t, urgency.High, d.Urgency)
	require.True(t, d.Notified())
	require.Len(t, d.Deliveries, 1)
	assert.Equal(t, notify.StatusSent, d.Deliveries[0].Result.Status)

	assert.Equal(t, 1, ch.count())
	msg := ch.messages[0]
	assert.Equal(t, "Proceed? [y/n]", msg.Content)
	assert.Equal(t, "vcwatch", msg.Metadata.Project)
	assert.Equal(t, "confirmation", msg.Metadata.Detail)
	assert.Contains(t, msg.Metadata.Snapshot, "Running tests")
	assert.Len(t, d.Key, 16)

	var pl map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &pl))
	assert.Equal(t, "waiting", pl["status"])
	assert.Equal(t, "bracket_yes_no", pl["rule"])
	assert.Equal(t, d.Key, pl["key"])
}

func TestObserve_PermissionRequest(t *testing.T) {
	p, _ := newTestPipeline(t, 1)
	d, err := p.Observe(context.Background(), "a", "Do you want to allow edits to main.go?")
	require.NoError(t, err)
	assert.Equal(t, waitpattern.PermissionRequest, d.Verdict.Pattern)
	assert.Equal(t, EventPermissionRequest, d.Event)
	assert.Equal(t, urgency.High, d.Urgency)
}

func TestObserve_SuppressesRepeats(t *testing.T) {
	ctx := context.Background()
	p, ch := newTestPipeline(t, 1)

	d, _ := p.Observe(ctx, "a", "\x1b[31m[10:30:00]\x1b[0m Continue?")
	assert.True(t, d.Notified())

	// Same content, different styling and timestamp: same key.
	d, err := p.Observe(ctx, "a", "\x1b[32m[11:45:30]\x1b[0m Continue?")
	require.NoError(t, err)
	assert.True(t, d.Repeat)
	assert.False(t, d.Notified())

	d, _ = p.Observe(ctx, "b", "Continue?")
	assert.True(t, d.Notified(), "other agents are independent")

	assert.Equal(t, 2, ch.count())
}

func TestObserve_UnknownIsNotProcessing(t *testing.T) {
	ctx := context.Background()
	p, ch := newTestPipeline(t, 1)

	d, err := p.Observe(ctx, "busy", "Compiling main.go\nLinking...")
	require.NoError(t, err)
	assert.Equal(t, Processing, d.Status)
	assert.False(t, d.Status.ShouldNotify())
	assert.False(t, d.Notified())

	d, err = p.Observe(ctx, "garbled", "\x1b[2J\x1b[H\x01\x02")
	require.NoError(t, err)
	assert.Equal(t, waitpattern.Unknown, d.Verdict.Pattern)
	assert.Equal(t, Unknown, d.Status)
	assert.True(t, d.Status.ShouldNotify())
	require.True(t, d.Notified())
	assert.Equal(t, EventNotification, d.Event)
	assert.Equal(t, urgency.Medium, d.Urgency)

	assert.Equal(t, 1, ch.count())
}

func TestObserve_ExtractorSuccess(t *testing.T) {
	ctx := context.Background()
	ex := &stubExtractor{results: []extract.Result{{
		Outcome: extract.OutcomeSuccess,
		Message: &extract.ExtractedMessage{
			Content:     "Which database should I use?",
			Options:     []string{"1. Postgres", "2. SQLite"},
			Fingerprint: "db-choice",
			MessageType: extract.TypeChoice,
			IsDecision:  true,
			Confidence:  0.9,
		},
	}}}
	p, ch := newTestPipeline(t, 1, WithExtractor(ex))

	d, err := p.Observe(ctx, "a", "I have two options in mind\n1. Postgres\n2. SQLite")
	require.NoError(t, err)
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, Waiting, d.Status)
	assert.Equal(t, EventWaitingForInput, d.Event)
	require.True(t, d.Notified())
	assert.Equal(t, "Which database should I use?\n1. Postgres\n2. SQLite", ch.messages[0].Content)
	assert.Equal(t, "choice", ch.messages[0].Metadata.Detail)

	// Different rendering, same semantic fingerprint.
	d, err = p.Observe(ctx, "a", "Pick one\n1. Postgres\n2. SQLite")
	require.NoError(t, err)
	assert.True(t, d.Repeat)
	assert.Equal(t, 1, ch.count())
}

func TestObserve_ReusesExtractionWhileStable(t *testing.T) {
	ctx := context.Background()
	ex := &stubExtractor{results: []extract.Result{{
		Outcome: extract.OutcomeSuccess,
		Message: &extract.ExtractedMessage{Content: "Which region?", Fingerprint: "region", MessageType: extract.TypeInput},
	}}}
	p, ch := newTestPipeline(t, 3, WithExtractor(ex))

	const snap = "Deploy target not set\nregions: us-east-1, eu-west-1"
	for i := 0; i < 10; i++ {
		_, err := p.Observe(ctx, "a", snap)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, 1, ch.count())

	const changed = "Deploy target not set\nregions: us-east-1, eu-west-1, ap-south-1"
	for i := 0; i < 5; i++ {
		_, err := p.Observe(ctx, "a", changed)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ex.calls, "new content runs the extractor again")

	require.NoError(t, p.Forget(ctx, "a"))
	for i := 0; i < 3; i++ {
		_, err := p.Observe(ctx, "a", changed)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, ex.calls, "forget drops the cached extraction")
}

func TestObserve_SharedFingerprintDifferentQuestion(t *testing.T) {
	ctx := context.Background()
	ex := &stubExtractor{results: []extract.Result{
		{Outcome: extract.OutcomeSuccess, Message: &extract.ExtractedMessage{
			Content: "Apply the edit to main.go?", Fingerprint: "confirm-edit", MessageType: extract.TypeConfirmation}},
		{Outcome: extract.OutcomeSuccess, Message: &extract.ExtractedMessage{
			Content: "Apply the edit to go.mod?", Fingerprint: "confirm-edit", MessageType: extract.TypeConfirmation}},
	}}
	p, ch := newTestPipeline(t, 1, WithExtractor(ex))

	d, err := p.Observe(ctx, "a", "edit ready for main.go")
	require.NoError(t, err)
	assert.True(t, d.Notified())

	d, err = p.Observe(ctx, "a", "edit ready for go.mod")
	require.NoError(t, err)
	assert.False(t, d.Repeat)
	assert.True(t, d.Notified())
	assert.Equal(t, 2, ch.count())
}

func TestObserve_ExtractorPermissionType(t *testing.T) {
	ex := &stubExtractor{results: []extract.Result{{
		Outcome: extract.OutcomeSuccess,
		Message: &extract.ExtractedMessage{Content: "Run rm -rf build", MessageType: extract.TypePermission},
	}}}
	p, _ := newTestPipeline(t, 1, WithExtractor(ex))

	d, err := p.Observe(context.Background(), "a", "about to run rm -rf build")
	require.NoError(t, err)
	assert.Equal(t, EventPermissionRequest, d.Event)
	assert.Equal(t, urgency.High, d.Urgency)
}

func TestObserve_ExtractorOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		result   extract.Result
		status   AgentStatus
		notified bool
	}{
		{"processing", extract.Result{Outcome: extract.OutcomeProcessing}, Processing, false},
		{"failed", extract.Result{Outcome: extract.OutcomeFailed, Reason: "unparseable"}, Unknown, true},
		{"error", extract.Result{Outcome: extract.OutcomeError, Reason: "circuit open"}, Unknown, true},
		{"need more context", extract.Result{Outcome: extract.OutcomeNeedMoreContext}, Unknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ch := newTestPipeline(t, 1, WithExtractor(&stubExtractor{results: []extract.Result{tt.result}}))
			d, err := p.Observe(context.Background(), "a", "some ambiguous output")
			require.NoError(t, err)
			assert.Equal(t, tt.status, d.Status)
			assert.Equal(t, tt.notified, d.Notified())
			if tt.notified {
				assert.Equal(t, urgency.Medium, d.Urgency)
				if tt.result.Reason != "" {
					assert.Contains(t, ch.messages[0].Content, tt.result.Reason)
				}
			}
		})
	}
}

func TestObserve_RuleMatchSkipsExtractor(t *testing.T) {
	ex := &stubExtractor{results: []extract.Result{{Outcome: extract.OutcomeProcessing}}}
	p, _ := newTestPipeline(t, 1, WithExtractor(ex))

	d, err := p.Observe(context.Background(), "a", "Overwrite file? [y/n]")
	require.NoError(t, err)
	assert.Equal(t, Waiting, d.Status)
	assert.Zero(t, ex.calls)
	assert.Nil(t, d.Extraction)
}

func TestForget_ReannouncesAgent(t *testing.T) {
	ctx := context.Background()
	p, ch := newTestPipeline(t, 1)

	_, _ = p.Observe(ctx, "a", "Continue?")
	d, _ := p.Observe(ctx, "a", "Continue?")
	assert.True(t, d.Repeat)

	require.NoError(t, p.Forget(ctx, "a"))
	d, _ = p.Observe(ctx, "a", "Continue?")
	assert.True(t, d.Notified())
	assert.Equal(t, 2, ch.count())
}

type failingTracker struct{}

func (failingTracker) Observe(context.Context, string, string, string) (bool, error) {
	return false, errors.New("database is locked")
}
func (failingTracker) Forget(context.Context, string) error { return nil }

func TestObserve_TrackerError(t *testing.T) {
	p, ch := newTestPipeline(t, 1, WithTracker(failingTracker{}))
	_, err := p.Observe(context.Background(), "a", "Continue?")
	assert.ErrorContains(t, err, "database is locked")
	assert.Zero(t, ch.count())
}

func TestObserve_Async(t *testing.T) {
	ch := &captureChannel{async: make(chan *notify.Message, 1)}
	cfg := DefaultConfig()
	cfg.StabilityThreshold = 1
	cfg.Async = true
	p := New(cfg, notify.NewDispatcher(nil, ch))

	d, err := p.Observe(context.Background(), "a", "Press enter to continue")
	require.NoError(t, err)
	assert.True(t, d.Notified())
	assert.Nil(t, d.Deliveries)

	select {
	case msg := <-ch.async:
		assert.Equal(t, d.Message.ID, msg.ID)
	case <-time.After(time.Second):
		t.Fatal("async send not started")
	}
}

func TestAgentStatus(t *testing.T) {
	assert.False(t, Processing.ShouldNotify())
	assert.True(t, Waiting.ShouldNotify())
	assert.True(t, Unknown.ShouldNotify())
	assert.Equal(t, "unknown", Unknown.String())
	var zero AgentStatus
	assert.Equal(t, Processing, zero)
}
