package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/vcwatch/internal/store"
	"github.com/steveyegge/vcwatch/internal/urgency"
)

type sentMessage struct {
	channelType, target, text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	done chan struct{}
}

func (s *recordingSender) SendMessage(_ context.Context, channelType, target, text string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{channelType, target, text})
	s.mu.Unlock()
	if s.done != nil {
		s.done <- struct{}{}
	}
	return s.err
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func testMessage(level urgency.Level) *Message {
	msg := NewMessage("agent-1", "Allow write to main.go?", level, "permission_request")
	msg.Metadata.Project = "vcwatch"
	return msg
}

func TestFormat(t *testing.T) {
	msg := testMessage(urgency.High)
	assert.Equal(t, "[HIGH] vcwatch/agent-1: Allow write to main.go?", Format(msg))

	msg.Metadata.Project = ""
	assert.Equal(t, "[HIGH] agent-1: Allow write to main.go?", Format(msg))

	msg.AgentID = ""
	assert.Equal(t, "[HIGH] Allow write to main.go?", Format(msg))
}

func TestNewMessage(t *testing.T) {
	a := NewMessage("a", "x", urgency.Low, "stop")
	b := NewMessage("a", "x", urgency.Low, "stop")
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Metadata.Timestamp.IsZero())
	assert.False(t, a.HasPayload())

	a.Payload = json.RawMessage("null")
	assert.False(t, a.HasPayload())
	a.Payload = json.RawMessage(`{"k":1}`)
	assert.True(t, a.HasPayload())
}

func TestMessagingChannel_UrgencyFilter(t *testing.T) {
	ch := NewMessagingChannel(MessagingConfig{ChannelType: "slack", Target: "#a", MinUrgency: urgency.Medium}, &recordingSender{}, nil)

	assert.Equal(t, "slack", ch.Name())
	assert.True(t, ch.ShouldSend(testMessage(urgency.High)))
	assert.True(t, ch.ShouldSend(testMessage(urgency.Medium)))
	assert.False(t, ch.ShouldSend(testMessage(urgency.Low)))
}

func TestMessagingChannel_Send(t *testing.T) {
	s := &recordingSender{}
	ch := NewMessagingChannel(MessagingConfig{Name: "ops", ChannelType: "telegram", Target: "42"}, s, nil)

	res := ch.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, StatusSent, res.Status)
	require.Len(t, s.messages(), 1)
	assert.Equal(t, sentMessage{"telegram", "42", "[HIGH] vcwatch/agent-1: Allow write to main.go?"}, s.messages()[0])

	s.err = errors.New("boom")
	res = ch.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "boom", res.Reason)
}

func TestMessagingChannel_RateLimit(t *testing.T) {
	s := &recordingSender{}
	ch := NewMessagingChannel(MessagingConfig{ChannelType: "slack", RatePerMinute: 1, Burst: 2}, s, nil)

	assert.Equal(t, StatusSent, ch.Send(context.Background(), testMessage(urgency.High)).Status)
	assert.Equal(t, StatusSent, ch.Send(context.Background(), testMessage(urgency.High)).Status)
	res := ch.Send(context.Background(), testMessage(urgency.High))
	assert.Equal(t, Skipped(ReasonRateLimited), res)
	assert.Len(t, s.messages(), 2)
}

func TestMessagingChannel_SendAsyncDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	s := SenderFunc(func(ctx context.Context, _, _, _ string) error {
		<-release
		return nil
	})
	ch := NewMessagingChannel(MessagingConfig{ChannelType: "slack"}, s, nil)

	start := time.Now()
	ch.SendAsync(testMessage(urgency.High))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	close(release)
}

func TestDashboardChannel(t *testing.T) {
	s := &recordingSender{}
	ch := NewDashboardChannel(DashboardConfig{ChannelType: "webhook", Target: "board"}, s, nil)
	assert.Equal(t, "dashboard", ch.Name())

	msg := testMessage(urgency.Medium)
	assert.False(t, ch.ShouldSend(msg))
	assert.Equal(t, StatusSkipped, ch.Send(context.Background(), msg).Status)

	msg.Payload = json.RawMessage(`{"pattern":"confirmation"}`)
	require.True(t, ch.ShouldSend(msg))
	require.Equal(t, StatusSent, ch.Send(context.Background(), msg).Status)

	sent := s.messages()
	require.Len(t, sent, 1)
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(sent[0].text), &env))
	assert.Equal(t, msg.ID, env["id"])
	assert.Equal(t, "MEDIUM", env["urgency"])
	assert.Equal(t, "permission_request", env["event"])
	assert.NotEmpty(t, env["ts"])
	assert.Equal(t, map[string]any{"pattern": "confirmation"}, env["payload"])

	msg.Payload = json.RawMessage(`{broken`)
	assert.Equal(t, StatusFailed, ch.Send(context.Background(), msg).Status)
}

type memAppender struct {
	recs []store.Record
	err  error
}

func (m *memAppender) Append(rec store.Record) error {
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func TestLogChannel(t *testing.T) {
	app := &memAppender{}
	ch := NewLogChannel(app, nil)

	msg := testMessage(urgency.High)
	msg.Content = "Allow write?\n1. Yes\n2. No"
	msg.Metadata.Detail = "permission_request"
	msg.Metadata.Snapshot = "tail"

	assert.True(t, ch.ShouldSend(msg))
	assert.True(t, ch.ShouldSend(testMessage(urgency.Low)))
	require.Equal(t, StatusSent, ch.Send(context.Background(), msg).Status)

	require.Len(t, app.recs, 1)
	rec := app.recs[0]
	assert.Equal(t, "agent-1", rec.AgentID)
	assert.Equal(t, "HIGH", rec.Urgency)
	assert.Equal(t, "permission_request", rec.Event)
	assert.Equal(t, "Allow write?", rec.Summary)
	assert.Equal(t, "vcwatch", rec.Project)
	assert.Equal(t, "tail", rec.TerminalSnapshot)

	app.err = errors.New("disk full")
	assert.Equal(t, Failed("disk full"), ch.Send(context.Background(), msg))
}

func TestSummarize_Truncates(t *testing.T) {
	long := strings.Repeat("é", 500)
	got := summarize(long)
	assert.Equal(t, maxSummaryRunes, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSendResult_String(t *testing.T) {
	assert.Equal(t, "sent", Sent().String())
	assert.Equal(t, "skipped(dry-run)", Skipped(ReasonDryRun).String())
	assert.Equal(t, "failed(x)", Failed("x").String())
}
