package dedup

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns. Order matters: OSC must go before the bare-ESC
// sweep, otherwise its payload would survive as visible text.
var (
	oscRegex     = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	csiRegex     = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	bareEscRegex = regexp.MustCompile(`\x1b.?`)

	// Other C0 controls except tab and newline. Carriage returns are
	// handled separately so CRLF captures normalize like LF captures.
	controlRegex = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

	isoDateTimeRegex  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2}(?:[.,]\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?`)
	bracketClockRegex = regexp.MustCompile(`\[\d{1,2}:\d{2}(?::\d{2})?\]`)
	bracketEpochRegex = regexp.MustCompile(`\[\d{10,13}\]`)
	bareDateRegex     = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)
)

// StripANSI removes terminal escape sequences and stray control characters.
// Tabs and newlines are kept.
func StripANSI(s string) string {
	if !strings.ContainsAny(s, "\x1b\r") && !controlRegex.MatchString(s) {
		return s
	}
	s = oscRegex.ReplaceAllString(s, "")
	s = csiRegex.ReplaceAllString(s, "")
	s = bareEscRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return controlRegex.ReplaceAllString(s, "")
}

// StripTimestamps removes the timestamp shapes commonly printed by agent
// CLIs and shells. ISO datetimes go first so their date half is not left
// behind by the bare-date rule.
func StripTimestamps(s string) string {
	s = isoDateTimeRegex.ReplaceAllString(s, "")
	s = bracketClockRegex.ReplaceAllString(s, "")
	s = bracketEpochRegex.ReplaceAllString(s, "")
	return bareDateRegex.ReplaceAllString(s, "")
}

// Normalize applies the full canonicalization used for keys: escape
// sequences, timestamps, blank lines and surrounding whitespace are removed.
func Normalize(raw string) string {
	text := StripTimestamps(StripANSI(raw))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
