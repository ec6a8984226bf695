// Package classify maps a provider-reported call result to a verification
// outcome. It is a deliberately conservative heuristic: absence of an explicit
// positive phrase never yields a positive outcome, even when the call
// connected. Ambiguous calls take the fallback path.
package classify

import (
	"fmt"
	"strings"
)

// CallResult is the provider-reported view of a finished call.
// Summary may be empty; transcripts and analysis are not always available.
type CallResult struct {
	Status          string
	DurationSeconds float64
	Summary         string
}

// Outcome is the classification verdict plus a human-readable reason.
type Outcome struct {
	Positive bool
	Reason   string
}

// Call statuses that mean the call never connected.
var disconnectedStatuses = map[string]struct{}{
	"failed":    {},
	"busy":      {},
	"no-answer": {},
	"no_answer": {},
	"voicemail": {},
}

var negativePhrases = []string{
	"no answer",
	"voicemail",
	"busy",
	"failed",
	"unanswered",
	"answering machine",
	"not interested",
	"wrong number",
	"blocked",
}

var positivePhrases = []string{
	"interested",
	"positive",
	"qualified",
	"send info",
	"send information",
	"follow up",
	"accepting referrals",
	"success",
	"connected",
}

// Classify is a pure function; equal inputs always produce equal outcomes.
func Classify(res CallResult) Outcome {
	connected := res.DurationSeconds > 0
	if !connected {
		status := strings.ToLower(strings.TrimSpace(res.Status))
		if status != "" {
			if _, bad := disconnectedStatuses[status]; !bad {
				connected = true
			}
		}
	}

	summary := strings.ToLower(res.Summary)

	var negative string
	for _, p := range negativePhrases {
		if strings.Contains(summary, p) {
			negative = p
			break
		}
	}

	var positive string
	if negative == "" {
		for _, p := range positivePhrases {
			if strings.Contains(summary, p) {
				positive = p
				break
			}
		}
	}

	switch {
	case negative != "":
		return Outcome{Positive: false, Reason: fmt.Sprintf("negative signal: %q", negative)}
	case !connected:
		return Outcome{Positive: false, Reason: "call did not connect"}
	case positive == "":
		return Outcome{Positive: false, Reason: "no positive signal in call summary"}
	default:
		return Outcome{Positive: true, Reason: fmt.Sprintf("positive signal: %q", positive)}
	}
}
