package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/vcwatch/internal/store"
	"github.com/steveyegge/vcwatch/internal/urgency"
)

// DefaultAsyncTimeout bounds a background send started by SendAsync.
const DefaultAsyncTimeout = 30 * time.Second

// Channel is one notification destination.
type Channel interface {
	Name() string
	// ShouldSend reports whether msg is relevant to this channel.
	ShouldSend(msg *Message) bool
	// Send delivers msg and blocks until the transport finishes.
	Send(ctx context.Context, msg *Message) SendResult
	// SendAsync starts delivery and returns immediately.
	SendAsync(msg *Message)
}

func sendInBackground(ch Channel, msg *Message, timeout time.Duration, logger *slog.Logger) {
	if timeout <= 0 {
		timeout = DefaultAsyncTimeout
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("async send panicked", "channel", ch.Name(), "message_id", msg.ID, "panic", r)
			}
		}()
		if res := ch.Send(ctx, msg); res.Status == StatusFailed {
			logger.Warn("async send failed", "channel", ch.Name(), "message_id", msg.ID, "reason", res.Reason)
		}
	}()
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// MessagingConfig configures a MessagingChannel.
type MessagingConfig struct {
	Name        string
	ChannelType string // e.g. "slack", "telegram"
	Target      string
	MinUrgency  urgency.Level

	// RatePerMinute limits sends; zero disables the limit.
	RatePerMinute float64
	Burst         int

	AsyncTimeout time.Duration
}

// MessagingChannel sends formatted text to a chat target for messages at or
// above a minimum urgency.
type MessagingChannel struct {
	cfg     MessagingConfig
	sender  Sender
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewMessagingChannel creates a messaging channel.
func NewMessagingChannel(cfg MessagingConfig, sender Sender, logger *slog.Logger) *MessagingChannel {
	if cfg.Name == "" {
		cfg.Name = cfg.ChannelType
	}
	c := &MessagingChannel{cfg: cfg, sender: sender, logger: orDefault(logger)}
	if cfg.RatePerMinute > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), burst)
	}
	return c
}

func (c *MessagingChannel) Name() string { return c.cfg.Name }

func (c *MessagingChannel) ShouldSend(msg *Message) bool {
	return msg.Urgency.AtLeast(c.cfg.MinUrgency)
}

func (c *MessagingChannel) Send(ctx context.Context, msg *Message) SendResult {
	if c.limiter != nil && !c.limiter.Allow() {
		return Skipped(ReasonRateLimited)
	}
	if err := c.sender.SendMessage(ctx, c.cfg.ChannelType, c.cfg.Target, Format(msg)); err != nil {
		return Failed(err.Error())
	}
	return Sent()
}

func (c *MessagingChannel) SendAsync(msg *Message) {
	sendInBackground(c, msg, c.cfg.AsyncTimeout, c.logger)
}

// DashboardConfig configures a DashboardChannel.
type DashboardConfig struct {
	Name         string
	ChannelType  string
	Target       string
	AsyncTimeout time.Duration
}

// DashboardChannel forwards structured payloads as JSON envelopes. Messages
// without a payload are not relevant to it.
type DashboardChannel struct {
	cfg    DashboardConfig
	sender Sender
	logger *slog.Logger
}

type dashboardEnvelope struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"ts"`
	AgentID   string          `json:"agent_id"`
	Urgency   urgency.Level   `json:"urgency"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// NewDashboardChannel creates a dashboard channel.
func NewDashboardChannel(cfg DashboardConfig, sender Sender, logger *slog.Logger) *DashboardChannel {
	if cfg.Name == "" {
		cfg.Name = "dashboard"
	}
	return &DashboardChannel{cfg: cfg, sender: sender, logger: orDefault(logger)}
}

func (c *DashboardChannel) Name() string { return c.cfg.Name }

func (c *DashboardChannel) ShouldSend(msg *Message) bool {
	return msg.HasPayload()
}

func (c *DashboardChannel) Send(ctx context.Context, msg *Message) SendResult {
	if !msg.HasPayload() {
		return Skipped("no payload")
	}
	if !json.Valid(msg.Payload) {
		return Failed("payload is not valid JSON")
	}
	ts := msg.Metadata.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	body, err := json.Marshal(dashboardEnvelope{
		ID:        msg.ID,
		Timestamp: ts,
		AgentID:   msg.AgentID,
		Urgency:   msg.Urgency,
		Event:     msg.Metadata.EventType,
		Payload:   msg.Payload,
	})
	if err != nil {
		return Failed(fmt.Sprintf("failed to encode payload: %v", err))
	}
	if err := c.sender.SendMessage(ctx, c.cfg.ChannelType, c.cfg.Target, string(body)); err != nil {
		return Failed(err.Error())
	}
	return Sent()
}

func (c *DashboardChannel) SendAsync(msg *Message) {
	sendInBackground(c, msg, c.cfg.AsyncTimeout, c.logger)
}

// RecordAppender is the part of store.Store the log channel needs.
type RecordAppender interface {
	Append(rec store.Record) error
}

// maxSummaryRunes caps the summary field of a logged record.
const maxSummaryRunes = 200

// LogChannel appends every message to the durable notification log.
type LogChannel struct {
	store  RecordAppender
	logger *slog.Logger
}

// NewLogChannel creates a log channel writing to s.
func NewLogChannel(s RecordAppender, logger *slog.Logger) *LogChannel {
	return &LogChannel{store: s, logger: orDefault(logger)}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) ShouldSend(*Message) bool { return true }

func (c *LogChannel) Send(_ context.Context, msg *Message) SendResult {
	if err := c.store.Append(ToRecord(msg)); err != nil {
		return Failed(err.Error())
	}
	return Sent()
}

func (c *LogChannel) SendAsync(msg *Message) {
	sendInBackground(c, msg, 0, c.logger)
}

// ToRecord converts a message to its stored form.
func ToRecord(msg *Message) store.Record {
	return store.Record{
		Timestamp:        msg.Metadata.Timestamp,
		AgentID:          msg.AgentID,
		Urgency:          msg.Urgency.String(),
		Event:            msg.Metadata.EventType,
		Summary:          summarize(msg.Content),
		Project:          msg.Metadata.Project,
		EventDetail:      msg.Metadata.Detail,
		TerminalSnapshot: msg.Metadata.Snapshot,
		RiskLevel:        msg.Metadata.RiskLevel,
	}
}

func summarize(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	r := []rune(line)
	if len(r) > maxSummaryRunes {
		return string(r[:maxSummaryRunes-3]) + "..."
	}
	return line
}
