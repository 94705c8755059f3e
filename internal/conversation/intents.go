package conversation

import (
	"strconv"
	"strings"
)

// Intent is the closed set of recognized inbound message intents, tried in
// precedence order by the engine.
type Intent string

const (
	IntentNumberedSelection Intent = "numbered_selection"
	IntentMoreOptions       Intent = "more_options"
	IntentConfirm           Intent = "confirm"
	IntentReschedule        Intent = "reschedule"
	IntentNone              Intent = "none"
)

// moreOptionsDigit is the reserved option number meaning "show me more".
const moreOptionsDigit = 4

// ClassifyIntent matches the body against the ordered intent matchers.
// Numbered selection only fires while an option set is pending; a bare "4"
// without one classifies as a more-options request so the engine can explain
// there is nothing to pick from.
func ClassifyIntent(body string, hasPending bool) (Intent, int) {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if normalized == "" {
		return IntentNone, 0
	}

	if n, ok := parseSelectionDigit(normalized); ok {
		if hasPending {
			return IntentNumberedSelection, n
		}
		if n == moreOptionsDigit {
			return IntentMoreOptions, n
		}
	}

	if isConfirm(normalized) {
		return IntentConfirm, 0
	}
	if isReschedule(normalized) {
		return IntentReschedule, 0
	}
	return IntentNone, 0
}

// parseSelectionDigit accepts a bare 1-4, with or without trailing punctuation.
func parseSelectionDigit(body string) (int, bool) {
	trimmed := strings.TrimRight(body, ".!)")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	if n < 1 || n > moreOptionsDigit {
		return 0, false
	}
	return n, true
}

func isConfirm(body string) bool {
	if body == "confirm" || body == "c" {
		return true
	}
	return strings.HasPrefix(body, "yes")
}

func isReschedule(body string) bool {
	if body == "reschedule" || body == "r" {
		return true
	}
	return strings.HasPrefix(body, "change") || strings.HasPrefix(body, "move")
}

// Free-text outcomes recorded on the AI-run audit row.
const (
	OutcomeCompleted = "completed"
	OutcomeFallback  = "fallback"
	OutcomeHandoff   = "handoff"
)

var humanKeywords = []string{
	"human", "agent", "person", "someone", "representative",
	"urgent", "emergency", "call me", "speak to",
}

var bookingKeywords = []string{
	"book", "appointment", "schedule", "availab",
	"quote", "price", "cost", "how much",
}

// freeTextResult is the fallback classifier's verdict on an unrecognized body.
type freeTextResult struct {
	Outcome string
	// DriftScore is a confidence complement kept for later analysis; it does
	// not drive control flow.
	DriftScore float64
	Handoff    bool
}

// classifyFreeText weighs keywords when no structured intent matched.
func classifyFreeText(body string) freeTextResult {
	normalized := strings.ToLower(body)

	score := 0
	for _, kw := range humanKeywords {
		if strings.Contains(normalized, kw) {
			score++
		}
	}
	if score > 0 {
		return freeTextResult{Outcome: OutcomeHandoff, DriftScore: drift(score), Handoff: true}
	}

	for _, kw := range bookingKeywords {
		if strings.Contains(normalized, kw) {
			score++
		}
	}
	if score > 0 {
		return freeTextResult{Outcome: OutcomeCompleted, DriftScore: drift(score)}
	}

	return freeTextResult{Outcome: OutcomeFallback, DriftScore: 1}
}

func drift(matched int) float64 {
	confidence := float64(matched) / 2
	if confidence > 1 {
		confidence = 1
	}
	return 1 - confidence
}
