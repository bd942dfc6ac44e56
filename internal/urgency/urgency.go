// Package urgency maps agent events to a three-level priority.
//
// Classify is pure and total: any pair of strings yields a Level, and
// unrecognized or unparseable input degrades to Low.
package urgency

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

// Level is a notification priority. Higher values are more urgent.
type Level int

const (
	Low Level = iota
	Medium
	High
)

// String returns the upper-case wire form used in stored records.
func (l Level) String() string {
	switch l {
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Parse converts a wire form back to a Level. Unrecognized input is Low.
func Parse(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return High
	case "MEDIUM":
		return Medium
	default:
		return Low
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	*l = Parse(string(b))
	return nil
}

// AtLeast reports whether l is min or more urgent.
func (l Level) AtLeast(min Level) bool {
	return l >= min
}

// Event types, in normalized form: lower case with separators removed, so
// "permission_request", "Permission-Request" and "PermissionRequest" all
// compare equal.
var eventLevels = map[string]Level{
	"permissionrequest": High,
	"error":             High,
	"waitingforinput":   High,

	"agentexit":    Medium,
	"agentexited":  Medium,
	"abnormalexit": Medium,
	"crash":        Medium,

	"sessionstart": Low,
	"sessionend":   Low,
	"stop":         Low,
	"tooluse":      Low,
	"pretooluse":   Low,
	"posttooluse":  Low,
	"subagentstop": Low,
}

// notificationTypeLevels covers the notification_type values carried by
// generic "notification" events.
var notificationTypeLevels = map[string]Level{
	"permission_prompt": High,
	"idle_prompt":       Medium,
}

// snapshotMarker separates the JSON header of a notification context from a
// free-text terminal snapshot appended after it.
const snapshotMarker = "--- terminal snapshot ---"

var notificationTypeRegex = regexp.MustCompile(`"notification_type"\s*:\s*"([^"]*)"`)

// NormalizeEvent lower-cases an event type and drops everything but letters
// and digits.
func NormalizeEvent(eventType string) string {
	var b strings.Builder
	b.Grow(len(eventType))
	for _, r := range eventType {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Classify returns the urgency of an event. rawContext is only consulted for
// "notification" events.
func Classify(eventType, rawContext string) Level {
	event := NormalizeEvent(eventType)
	if event == "notification" {
		return notificationLevel(rawContext)
	}
	if level, ok := eventLevels[event]; ok {
		return level
	}
	return Low
}

// NotificationType extracts notification_type from a notification context.
// The context is usually a JSON object, possibly followed by a terminal
// snapshot section. Returns "" when nothing can be found.
func NotificationType(rawContext string) string {
	header := rawContext
	if i := strings.Index(header, snapshotMarker); i >= 0 {
		header = header[:i]
	}
	header = strings.TrimSpace(header)

	if start := strings.IndexByte(header, '{'); start >= 0 {
		var payload struct {
			NotificationType string `json:"notification_type"`
		}
		// Decode the first value only so trailing text does not fail the parse.
		dec := json.NewDecoder(strings.NewReader(header[start:]))
		if err := dec.Decode(&payload); err == nil && payload.NotificationType != "" {
			return payload.NotificationType
		}
	}

	// Truncated or otherwise broken JSON.
	if m := notificationTypeRegex.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return ""
}

func notificationLevel(rawContext string) Level {
	nt := strings.ToLower(strings.TrimSpace(NotificationType(rawContext)))
	if level, ok := notificationTypeLevels[nt]; ok {
		return level
	}
	return Low
}
