// Package respond handles the continue-listening control marker and the
// post-processing applied to assistant text before it reaches a voice UI.
package respond

import (
	"regexp"
	"strings"
)

// Marker is the in-band token the model emits to signal that the
// microphone should stay open after the response is spoken. It must be
// stripped before any text reaches the user.
const Marker = "[CONTINUE_LISTENING]"

// FakeQuestionMark is a fullwidth question mark. Voice UIs key
// continue-listening off a trailing "?", so when auto-continue is
// disabled a real trailing "?" is swapped for this visually identical
// character that does not trigger the behavior.
const FakeQuestionMark = "？"

var trailingQuestion = regexp.MustCompile(`\?(\s*)$`)

// ForListening post-processes a complete (non-streamed) assistant
// response. It returns the cleaned text and whether the device should
// keep listening.
//
// If the marker is present it is stripped everywhere and the text is
// forced to end in "?" so the voice UI keeps the microphone open. If the
// marker is absent and autoContinue is disabled, a trailing "?" is
// replaced with [FakeQuestionMark] so the UI does not keep listening for
// a rhetorical question.
func ForListening(text string, autoContinue bool) (string, bool) {
	if strings.Contains(text, Marker) {
		cleaned := strings.TrimSpace(strings.ReplaceAll(text, Marker, ""))
		if !strings.HasSuffix(cleaned, "?") {
			cleaned += "?"
		}
		return cleaned, true
	}
	if !autoContinue {
		text = trailingQuestion.ReplaceAllString(text, FakeQuestionMark+"$1")
	}
	return text, false
}

// ListeningInstructions returns the system prompt section that teaches
// the model when to emit the marker. When autoContinue is on the device
// keeps listening by default, so the model is told not to bother.
func ListeningInstructions(autoContinue bool) string {
	if autoContinue {
		return ""
	}
	return "\n\nWhen you ask the user a question and expect an answer, append the exact token " +
		Marker + " to the end of your response. Use it only when a reply is genuinely needed; " +
		"never use it for rhetorical questions or confirmations."
}
