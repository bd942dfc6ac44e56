package extract

import (
	"strings"
	"unicode/utf8"
)

// Quality weights. They sum to 1.
const (
	weightQuestion    = 0.30
	weightIndicator   = 0.25
	weightConsistency = 0.20
	weightLength      = 0.15
	weightComplete    = 0.10
)

const (
	minQuestionRunes = 5
	maxQuestionRunes = 500
)

// questionIndicators mark text that asks something of the reader.
var questionIndicators = []string{
	"?", "？", "[y/n]", "(y/n)",
	"please", "choose", "select", "enter", "confirm", "allow", "approve",
	"continue", "proceed", "would you", "do you", "should i", "which",
	"是否", "请", "选择", "输入", "确认", "继续", "允许", "吗",
}

// Message types a model may report.
const (
	TypeConfirmation = "confirmation"
	TypeChoice       = "choice"
	TypePermission   = "permission"
	TypeInput        = "input"
	TypeInfo         = "info"
	TypeError        = "error"
)

// Assess scores a parsed response in [0,1]. Higher means more likely to be a
// complete, actionable prompt.
func Assess(r Response) float64 {
	question := strings.TrimSpace(r.Question)
	score := 0.0

	if question != "" {
		score += weightQuestion
	}
	if containsIndicator(question) {
		score += weightIndicator
	}
	if optionsConsistent(r.MessageType, r.Options) {
		score += weightConsistency
	}
	if n := utf8.RuneCountInString(question); n >= minQuestionRunes && n <= maxQuestionRunes {
		score += weightLength
	}
	if r.ContextComplete {
		score += weightComplete
	}

	return clamp01(score)
}

func containsIndicator(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, tok := range questionIndicators {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// optionsConsistent checks that the option list fits the declared type.
func optionsConsistent(messageType string, options []string) bool {
	n := 0
	for _, o := range options {
		if strings.TrimSpace(o) != "" {
			n++
		}
	}

	switch strings.ToLower(strings.TrimSpace(messageType)) {
	case TypeChoice:
		return n >= 2
	case TypeConfirmation, TypePermission:
		return n == 0 || n >= 2
	case TypeInput, TypeInfo, TypeError:
		return n == 0
	case "":
		return false
	default:
		return n != 1
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
