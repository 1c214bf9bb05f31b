package security

import "strings"

// Delimiters marking untrusted data inside a prompt. The system prompt tells the
// model that anything between them is data, never instructions.
const (
	SpotlightOpen  = "⟪untrusted⟫"
	SpotlightClose = "⟪/untrusted⟫"
)

// Spotlight wraps already sanitized text as untrusted data.
func Spotlight(s string) string {
	return SpotlightOpen + "\n" + s + "\n" + SpotlightClose
}

func stripDelimiters(s string) string {
	if !strings.Contains(s, "⟪") {
		return s
	}
	s = strings.ReplaceAll(s, SpotlightClose, "")
	return strings.ReplaceAll(s, SpotlightOpen, "")
}
