package security

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLen bounds any single externally sourced field, in runes.
const DefaultMaxLen = 4000

// Sanitize strips control and format characters and spotlight delimiters,
// applies NFKC normalization, trims, and truncates to maxLen runes.
// The result is a fixed point: Sanitize(Sanitize(s, n), n) == Sanitize(s, n).
func Sanitize(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	// Normalization can surface characters the strip pass removes (and the
	// reverse), so iterate to a fixed point. Real input settles in one or two rounds.
	for i := 0; i < 4; i++ {
		next := sanitizeOnce(s, maxLen)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func sanitizeOnce(s string, maxLen int) string {
	s = stripInvisible(s)
	s = norm.NFKC.String(s)
	s = strings.TrimSpace(s)
	return truncateNormalized(s, maxLen)
}

func stripInvisible(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		case r == utf8.RuneError:
			return -1
		}
		return r
	}, s)
	for {
		out := stripDelimiters(s)
		if out == s {
			return s
		}
		s = out
	}
}

// truncateNormalized cuts s to at most maxLen runes and then backs off until the
// prefix is itself NFKC-normal, so a second pass cannot change it.
func truncateNormalized(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)[:maxLen]
	out := string(runes)
	for out != "" && !norm.NFKC.IsNormalString(out) {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	return strings.TrimRightFunc(out, unicode.IsSpace)
}
