// Package extract resolves terminal snapshots the rule classifier could not
// decide by asking a completion service for a structured judgment.
//
// Extraction escalates through growing context windows. Each response is
// parsed, scored by a quality heuristic, and either accepted, kept as a
// fallback candidate, or discarded in favor of a larger window. A response
// that says the agent is still working ends the loop with Processing, which
// callers must never confuse with a failure.
package extract

// Confidence thresholds. Ordered LowConfidence < MediumConfidence < HighConfidence.
const (
	LowConfidence    = 0.4
	MediumConfidence = 0.6
	HighConfidence   = 0.8
)

// Outcome discriminates Result. The zero value is not a valid outcome.
type Outcome int

const (
	// OutcomeSuccess carries a notification-ready Message.
	OutcomeSuccess Outcome = iota + 1

	// OutcomeNeedMoreContext means every window scored too low.
	OutcomeNeedMoreContext

	// OutcomeProcessing means the agent is busy. Suppress notification.
	OutcomeProcessing

	// OutcomeFailed means responses arrived but none could be used.
	OutcomeFailed

	// OutcomeError means the service could not be reached at all.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNeedMoreContext:
		return "need_more_context"
	case OutcomeProcessing:
		return "processing"
	case OutcomeFailed:
		return "failed"
	case OutcomeError:
		return "error"
	default:
		return "invalid"
	}
}

// ExtractedMessage is the structured judgment of one successful extraction.
// Immutable once returned.
type ExtractedMessage struct {
	// Content is the question or prompt the agent is blocked on.
	Content string

	// Options are the answer choices, if the prompt offers any.
	Options []string

	// Fingerprint is a semantic dedup tag. Two extractions of the same
	// question share it even when the raw terminal text differs.
	Fingerprint string

	ContextComplete bool
	MessageType     string
	IsDecision      bool

	// Confidence is the quality score in [0,1].
	Confidence float64
}

// Result is the tagged outcome of Extract.
type Result struct {
	Outcome Outcome

	// Message is set only for OutcomeSuccess.
	Message *ExtractedMessage

	// Reason explains OutcomeFailed and OutcomeError.
	Reason string

	// Iterations is the number of completion calls made.
	Iterations int
}

// Succeeded reports whether r carries a message.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess && r.Message != nil
}
