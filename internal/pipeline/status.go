// Package pipeline turns terminal snapshots into notifications.
//
// Each Observe call runs one agent's snapshot through the stages in order:
// stability gate, rule classifier, optional AI extractor, repeat
// suppression, urgency, dispatch. The result is a Decision describing what
// happened at each stage.
package pipeline

import (
	"encoding/json"

	"github.com/steveyegge/vcwatch/internal/extract"
	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/urgency"
	"github.com/steveyegge/vcwatch/internal/waitpattern"
)

// AgentStatus is the pipeline's judgment of what an agent is doing.
type AgentStatus int

const (
	// Processing means the agent is busy. It is the zero value.
	Processing AgentStatus = iota
	// Waiting means the agent is blocked on human input.
	Waiting
	// Unknown means the classifier or extractor could not decide. A human
	// is alerted rather than assuming the agent is busy.
	Unknown
)

func (s AgentStatus) String() string {
	switch s {
	case Processing:
		return "processing"
	case Waiting:
		return "waiting"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ShouldNotify is false only for Processing.
func (s AgentStatus) ShouldNotify() bool {
	return s != Processing
}

// Decision records the outcome of one Observe call.
type Decision struct {
	AgentID string
	Stable  bool
	Status  AgentStatus

	Verdict waitpattern.Verdict

	// Extraction is set when the extractor ran.
	Extraction *extract.Result

	// Key is the dedup key of the classified window.
	Key string

	// Repeat is true when the notification was suppressed as a repeat.
	Repeat bool

	Event   string
	Urgency urgency.Level

	// Message is set when a notification was dispatched.
	Message    *notify.Message
	Deliveries []notify.Delivery
}

// Notified reports whether a message was handed to the dispatcher.
func (d Decision) Notified() bool {
	return d.Message != nil
}

// payload is the structured JSON attached to every notification.
type payload struct {
	Status      string   `json:"status"`
	Pattern     string   `json:"pattern"`
	Rule        string   `json:"rule,omitempty"`
	Key         string   `json:"key"`
	Outcome     string   `json:"extraction,omitempty"`
	MessageType string   `json:"message_type,omitempty"`
	Options     []string `json:"options,omitempty"`
	IsDecision  bool     `json:"is_decision,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
}

func (d Decision) payload() json.RawMessage {
	p := payload{
		Status:  d.Status.String(),
		Pattern: d.Verdict.Pattern.String(),
		Rule:    d.Verdict.Rule,
		Key:     d.Key,
	}
	if d.Extraction != nil {
		p.Outcome = d.Extraction.Outcome.String()
		if m := d.Extraction.Message; m != nil {
			p.MessageType = m.MessageType
			p.Options = m.Options
			p.IsDecision = m.IsDecision
			p.Confidence = m.Confidence
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return b
}
