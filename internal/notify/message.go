// Package notify delivers notifications about waiting agents to a set of
// channels.
//
// A Dispatcher owns an ordered list of Channels and calls each one per
// message. Channels decide for themselves whether a message is relevant
// (ShouldSend) and report a SendResult; one channel failing never stops the
// others. Outward channels hand the formatted text to a Sender, normally a
// CommandSender that shells out to an external messaging tool.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/vcwatch/internal/urgency"
)

// Metadata describes where a message came from.
type Metadata struct {
	EventType string    `json:"event_type"`
	Project   string    `json:"project,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Optional detail carried into the durable log.
	Detail    string `json:"detail,omitempty"`
	Snapshot  string `json:"snapshot,omitempty"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// Message is one outbound notification. Messages are shared read-only
// between channels once handed to the dispatcher.
type Message struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	AgentID  string          `json:"agent_id"`
	Urgency  urgency.Level   `json:"urgency"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Metadata Metadata        `json:"metadata"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(agentID, content string, level urgency.Level, eventType string) *Message {
	return &Message{
		ID:      uuid.New().String(),
		Content: content,
		AgentID: agentID,
		Urgency: level,
		Metadata: Metadata{
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
	}
}

// HasPayload reports whether the message carries structured data.
func (m *Message) HasPayload() bool {
	p := strings.TrimSpace(string(m.Payload))
	return p != "" && p != "null"
}

// Format renders the text sent to outward messaging channels:
// "[URGENCY] project/agent: content".
func Format(m *Message) string {
	var source string
	switch {
	case m.Metadata.Project != "" && m.AgentID != "":
		source = m.Metadata.Project + "/" + m.AgentID
	case m.AgentID != "":
		source = m.AgentID
	default:
		source = m.Metadata.Project
	}
	if source == "" {
		return fmt.Sprintf("[%s] %s", m.Urgency, m.Content)
	}
	return fmt.Sprintf("[%s] %s: %s", m.Urgency, source, m.Content)
}

// Status is the outcome of a single channel send.
type Status int

const (
	StatusSent Status = iota + 1
	StatusSkipped
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Skip reasons reported by channels and the dispatcher.
const (
	ReasonDryRun      = "dry-run"
	ReasonFiltered    = "filtered"
	ReasonRateLimited = "rate limited"
)

// SendResult is what a channel reports for one message.
type SendResult struct {
	Status Status
	Reason string
}

// Sent is a successful delivery.
func Sent() SendResult { return SendResult{Status: StatusSent} }

// Skipped means the channel intentionally did nothing.
func Skipped(reason string) SendResult { return SendResult{Status: StatusSkipped, Reason: reason} }

// Failed means delivery was attempted and did not succeed.
func Failed(reason string) SendResult { return SendResult{Status: StatusFailed, Reason: reason} }

func (r SendResult) String() string {
	if r.Reason == "" {
		return r.Status.String()
	}
	return fmt.Sprintf("%s(%s)", r.Status, r.Reason)
}
