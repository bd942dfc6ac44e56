package extract

import (
	"fmt"
	"strings"
)

// systemInstruction is sent with every extraction call.
const systemInstruction = `You read the tail of an AI coding agent's terminal and decide whether the agent is blocked waiting for a human.

Reply with a single JSON object and nothing else:
{
  "status": "waiting" | "processing" | "idle",
  "question": "the exact prompt or question shown to the user, empty if none",
  "message_type": "confirmation" | "choice" | "permission" | "input" | "info" | "error",
  "options": ["answer choices shown on screen, in order"],
  "context_complete": true if the whole prompt and all of its options are visible,
  "is_decision": true if the user must pick between alternatives,
  "fingerprint": "a short stable slug naming the question, independent of timestamps and formatting"
}

Use "processing" when output shows the agent still working (spinners, streaming text, running tools).
Do not invent options that are not on screen.`

// Response is the JSON payload the completion service is asked to return.
type Response struct {
	Status          string   `json:"status"`
	IsProcessing    bool     `json:"is_processing"`
	Question        string   `json:"question"`
	MessageType     string   `json:"message_type"`
	Options         []string `json:"options"`
	ContextComplete bool     `json:"context_complete"`
	IsDecision      bool     `json:"is_decision"`
	Fingerprint     string   `json:"fingerprint"`
}

// Processing reports whether the response says the agent is still busy.
// Some models answer with a boolean instead of the status field.
func (r Response) Processing() bool {
	return r.IsProcessing || strings.EqualFold(strings.TrimSpace(r.Status), "processing")
}

func buildPrompt(window string, lines int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Terminal output, last %d lines:\n", lines)
	b.WriteString("<terminal>\n")
	b.WriteString(window)
	if !strings.HasSuffix(window, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("</terminal>")
	return b.String()
}
