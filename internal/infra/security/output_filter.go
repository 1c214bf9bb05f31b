package security

import (
	"regexp"
	"strings"
)

const redacted = "[redacted]"

var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-(proj-|ant-)?[A-Za-z0-9_\-]{20,}`),                           // provider API keys
	regexp.MustCompile(`\bxox[abprse]-[A-Za-z0-9\-]{10,}`),                                // Slack bot/user tokens
	regexp.MustCompile(`\bxapp-[0-9]-[A-Za-z0-9\-]{10,}`),                                 // Slack app-level tokens
	regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),                                     // AWS access key ids
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),                                  // GitHub tokens
	regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`),                                      // Google API keys
	regexp.MustCompile(`\b[0-9]{8,10}:[A-Za-z0-9_\-]{35}\b`),                              // Telegram bot tokens
	regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}\.[A-Za-z0-9_\-]{8,}`), // JWTs
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`),
}

// OutputFilter cleans generator output before it may leave the pipeline.
type OutputFilter struct {
	fragments []*regexp.Regexp
}

// fragmentPunct may be dropped or swapped after any word of an echoed fragment.
const fragmentPunct = ".,;:!?"

// NewOutputFilter builds a filter that also removes the given system-prompt
// fragments wherever they reappear in model output (case-insensitive,
// whitespace and punctuation tolerant).
func NewOutputFilter(systemPromptFragments ...string) *OutputFilter {
	f := &OutputFilter{}
	for _, frag := range systemPromptFragments {
		var words []string
		for _, w := range strings.Fields(frag) {
			if w = strings.TrimRight(w, fragmentPunct); w != "" {
				words = append(words, regexp.QuoteMeta(w)+`[`+regexp.QuoteMeta(fragmentPunct)+`]?`)
			}
		}
		if len(words) == 0 {
			continue
		}
		f.fragments = append(f.fragments, regexp.MustCompile(`(?i)`+strings.Join(words, `\s+`)))
	}
	return f
}

// Apply strips leaked prompt fragments, residual spotlight delimiters and
// credential-shaped substrings.
func (f *OutputFilter) Apply(s string) string {
	if s == "" {
		return ""
	}
	for _, re := range f.fragments {
		s = re.ReplaceAllString(s, "")
	}
	s = stripDelimiters(s)
	for _, re := range credentialPatterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return tidy(s)
}

var blankRuns = regexp.MustCompile(`\n{3,}`)
var spaceRuns = regexp.MustCompile(`[ \t]{2,}`)

func tidy(s string) string {
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
