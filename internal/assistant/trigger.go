package assistant

import "strings"

// DefaultMarker summons the assistant when it appears in a message.
const DefaultMarker = "@ai"

// HasTrigger reports whether body contains marker.
func HasTrigger(body, marker string) bool {
	return marker != "" && strings.Contains(body, marker)
}

// ExtractPrompt removes the first occurrence of marker from body and trims
// the surrounding whitespace. Later occurrences and interior spacing are kept.
func ExtractPrompt(body, marker string) string {
	if marker == "" {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(strings.Replace(body, marker, "", 1))
}
