package messaging

import (
	"regexp"
	"strings"
)

// Carrier-mandated keywords that must short-circuit the conversation engine.
var (
	stopRegex = regexp.MustCompile(`(?i)^(?:please\s+)?(stop|stopall|unsubscribe|cancel|end|quit)\b`)
	helpRegex = regexp.MustCompile(`(?i)^(?:please\s+)?(help|info)\b`)
)

// IsStopRequest reports whether the body is an opt-out keyword.
func IsStopRequest(body string) bool {
	return stopRegex.MatchString(strings.TrimSpace(body))
}

// IsHelpRequest reports whether the body is a HELP/INFO keyword.
func IsHelpRequest(body string) bool {
	return helpRegex.MatchString(strings.TrimSpace(body))
}
