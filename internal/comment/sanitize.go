// Package comment pulls viewer comments from a YouTube live chat and
// occasionally replaces a persona's prompt with one, so the conversation
// reacts to the audience.
package comment

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxLen caps a sanitized comment in runes.
const MaxLen = 60

var (
	wsRe    = regexp.MustCompile(`\s+`)
	fenceRe = regexp.MustCompile("`{3,}")
	// Square brackets would collide with the emotion tag syntax the
	// presentation backend parses, so they are removed outright.
	bracketRe = regexp.MustCompile(`[\[\]<>]`)
)

// Sanitize folds a raw chat message into one safe line: NFKC
// normalization, whitespace collapsed, tag-like characters removed,
// length capped at MaxLen runes.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = wsRe.ReplaceAllString(s, " ")
	s = fenceRe.ReplaceAllString(s, "")
	s = bracketRe.ReplaceAllString(s, "")
	if r := []rune(s); len(r) > MaxLen {
		s = string(r[:MaxLen])
	}
	return strings.TrimSpace(s)
}
