package ai

import (
	"strings"
	"unicode/utf8"
)

// SafeTruncate cuts s to at most maxBytes without splitting a multi-byte
// character. Invalid input is returned cut at the last valid boundary found
// within four bytes, or empty.
func SafeTruncate(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}

	truncated := s[:maxBytes]
	// A UTF-8 sequence is at most 4 bytes long.
	for i := 0; i < utf8.UTFMax && len(truncated) > 0; i++ {
		if utf8.ValidString(truncated) {
			return truncated
		}
		truncated = truncated[:len(truncated)-1]
	}
	return ""
}

// SafeTail keeps at most the last maxBytes of s, starting on a character
// boundary.
func SafeTail(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// LastLines returns the last n lines of s. A trailing newline does not count
// as an extra empty line. n <= 0 returns s unchanged.
func LastLines(s string, n int) string {
	if n <= 0 {
		return s
	}
	trimmed := strings.TrimRight(s, "\n")
	idx := len(trimmed)
	for i := 0; i < n; i++ {
		idx = strings.LastIndexByte(trimmed[:idx], '\n')
		if idx < 0 {
			return trimmed
		}
	}
	return trimmed[idx+1:]
}
