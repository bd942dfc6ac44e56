package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled patterns for repairing model output.
var (
	// Fenced blocks, with or without a language tag and surrounding newlines.
	codeFenceWholeRegex = regexp.MustCompile("(?s)^`{3}(?:json|javascript|js)?\\s*\\n?(.*?)\\n?`{3}\\s*$")
	codeFenceAnyRegex   = regexp.MustCompile("(?s)`{3}(?:json|javascript|js)?\\s*\\n?(.*?)\\n?`{3}")

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Greedy so nested objects are captured whole.
	objectRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

// DefaultMaxParseInput bounds how much model output Parse will look at.
const DefaultMaxParseInput = 1 << 20

// ParseResult is the outcome of Parse. It never panics on bad input.
type ParseResult[T any] struct {
	Success bool
	Data    T
	Error   string
}

// ParseOptions configures Parse.
type ParseOptions struct {
	Context      string // prefix for error messages and log lines
	MaxInputSize int    // bytes, 0 = DefaultMaxParseInput
}

// Parse decodes a JSON object from model output, tolerating the usual
// formatting quirks. Strategies, in order:
//  1. Direct decode
//  2. Remove markdown code fences
//  3. Remove trailing commas and comments
//  4. Extract the outermost {...} from surrounding prose
func Parse[T any](text string, opts ...ParseOptions) ParseResult[T] {
	var options ParseOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxInputSize <= 0 {
		options.MaxInputSize = DefaultMaxParseInput
	}

	if len(text) > options.MaxInputSize {
		return parseError[T](options.Context,
			fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), options.MaxInputSize))
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parseError[T](options.Context, "empty input")
	}

	if data, err := decode[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	slog.Debug("direct JSON parse failed, trying cleanup",
		"context", options.Context,
		"preview", SafeTruncate(trimmed, 100))

	unfenced := removeCodeFences(trimmed)
	if unfenced != trimmed {
		if data, err := decode[T](unfenced); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	cleaned := cleanupJSON(unfenced)
	if data, err := decode[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: data}
	}

	if extracted := objectRegex.FindString(cleaned); extracted != "" && extracted != cleaned {
		if data, err := decode[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: data}
		}
	}

	return parseError[T](options.Context, "all JSON parsing strategies failed")
}

func decode[T any](text string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(text), &v)
	return v, err
}

func removeCodeFences(text string) string {
	cleaned := codeFenceWholeRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		if m := codeFenceAnyRegex.FindStringSubmatch(text); m != nil {
			cleaned = m[1]
		}
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON removes trailing commas and line or block comments. Quotes are
// left alone: rewriting single quotes would corrupt apostrophes in values.
func cleanupJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func parseError[T any](context, message string) ParseResult[T] {
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{Error: message}
}
