package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/vcwatch/internal/extract"
	"github.com/steveyegge/vcwatch/internal/notify"
	"github.com/steveyegge/vcwatch/internal/pipeline"
	"github.com/steveyegge/vcwatch/internal/store"
	"github.com/steveyegge/vcwatch/internal/urgency"
)

// urgencyColor returns the color used for an urgency label
func urgencyColor(level string) *color.Color {
	switch urgency.Parse(level) {
	case urgency.High:
		return color.New(color.FgRed, color.Bold)
	case urgency.Medium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func resultColor(r notify.SendResult) *color.Color {
	switch r.Status {
	case notify.StatusSent:
		return color.New(color.FgGreen)
	case notify.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

// truncateString shortens s to max runes with an ellipsis
func truncateString(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func printDeliveries(w io.Writer, deliveries []notify.Delivery) {
	for _, d := range deliveries {
		fmt.Fprintf(w, "  %-12s %s\n", d.Channel, resultColor(d.Result).Sprint(d.Result.String()))
	}
}

// printDecision writes a one-line summary of a pipeline decision, plus
// delivery results when there are any.
func printDecision(w io.Writer, d pipeline.Decision) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	switch {
	case !d.Stable:
		fmt.Fprintf(w, "%s %s\n", cyan(d.AgentID), gray("output still changing"))
		return
	case !d.Status.ShouldNotify():
		fmt.Fprintf(w, "%s %s\n", cyan(d.AgentID), gray("processing"))
		return
	case d.Repeat:
		fmt.Fprintf(w, "%s %s %s\n", cyan(d.AgentID), d.Status, gray("(repeat suppressed)"))
		return
	}

	label := urgencyColor(d.Urgency.String()).Sprintf("[%s]", d.Urgency)
	content := ""
	if d.Message != nil {
		content = truncateString(firstLine(d.Message.Content), 70)
	}
	fmt.Fprintf(w, "%s %s %s %s: %s\n", label, cyan(d.AgentID), d.Status, d.Verdict.Pattern, content)
	printDeliveries(w, d.Deliveries)
}

// printRecord writes one stored notification in the two-line history format
func printRecord(w io.Writer, rec store.Record) {
	label := urgencyColor(rec.Urgency).Sprintf("%-6s", rec.Urgency)
	agent := color.New(color.FgGreen).Sprint(rec.AgentID)
	event := color.New(color.FgMagenta).Sprint(rec.Event)

	fmt.Fprintf(w, "[%s] %s %s %s: %s\n",
		rec.Timestamp.Local().Format("01-02 15:04:05"),
		label, agent, event,
		truncateString(rec.Summary, 80))

	var meta []string
	if rec.Project != "" {
		meta = append(meta, "project="+rec.Project)
	}
	if rec.EventDetail != "" {
		meta = append(meta, "detail="+rec.EventDetail)
	}
	if rec.RiskLevel != "" {
		meta = append(meta, "risk="+rec.RiskLevel)
	}
	if len(meta) > 0 {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgHiBlack).Sprint(strings.Join(meta, " | ")))
	}
}

func printExtraction(w io.Writer, res extract.Result) {
	outcome := res.Outcome.String()
	switch res.Outcome {
	case extract.OutcomeSuccess:
		outcome = color.GreenString(outcome)
	case extract.OutcomeProcessing:
		outcome = color.CyanString(outcome)
	default:
		outcome = color.YellowString(outcome)
	}
	fmt.Fprintf(w, "outcome:    %s (%d iterations)\n", outcome, res.Iterations)
	if res.Reason != "" {
		fmt.Fprintf(w, "reason:     %s\n", res.Reason)
	}
	if m := res.Message; m != nil {
		fmt.Fprintf(w, "question:   %s\n", m.Content)
		for _, o := range m.Options {
			fmt.Fprintf(w, "  - %s\n", o)
		}
		fmt.Fprintf(w, "type:       %s (decision=%t)\n", m.MessageType, m.IsDecision)
		fmt.Fprintf(w, "confidence: %.2f  complete=%t\n", m.Confidence, m.ContextComplete)
		fmt.Fprintf(w, "fingerprint: %s\n", m.Fingerprint)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
