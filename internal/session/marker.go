package session

import "strings"

// CompletionMarker ends the run when the model emits it on a line of
// its own.
const CompletionMarker = "CORALPH_COMPLETE"

// HasCompletionMarker reports whether text contains the completion
// marker as a standalone line. Lines inside fenced code blocks are
// ignored so quoted instructions do not terminate the run, and a line
// that merely contains the marker as a substring does not count.
func HasCompletionMarker(text string) bool {
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if trimmed == CompletionMarker {
			return true
		}
	}
	return false
}
