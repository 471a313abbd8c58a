package textnorm

import (
	"regexp"
	"strings"
)

// Emotion tags understood by the presentation layer. Every dispatched
// utterance starts with exactly one of these, e.g. "[happy]こんにちは".
const (
	TagNeutral   = "neutral"
	TagHappy     = "happy"
	TagAngry     = "angry"
	TagSad       = "sad"
	TagRelaxed   = "relaxed"
	TagSurprised = "surprised"
)

// EmotionTags lists the recognized tags in presentation order.
var EmotionTags = []string{TagNeutral, TagHappy, TagAngry, TagSad, TagRelaxed, TagSurprised}

var (
	anyTagRe     = regexp.MustCompile(`^\[([a-zA-Z]+)\]\s*`)
	knownTagRe   = regexp.MustCompile(`(?i)^\[(neutral|happy|angry|sad|relaxed|surprised)\]\s*`)
	bodyTagRe    = regexp.MustCompile(`(?i)\[(neutral|happy|angry|sad|relaxed|surprised)\]`)
	knownTagsSet = func() map[string]bool {
		m := make(map[string]bool, len(EmotionTags))
		for _, t := range EmotionTags {
			m[t] = true
		}
		return m
	}()
)

// IsEmotionTag reports whether s is one of the recognized tag names.
func IsEmotionTag(s string) bool {
	return knownTagsSet[strings.ToLower(s)]
}

// NormalizeEmotion forces the utterance into the "[emotion]body" shape:
// exactly one recognized leading tag, lowercased, with any further tag
// occurrences removed from the body. Unknown or missing tags fall back to
// the given tag so the presentation layer always gets a usable expression.
func NormalizeEmotion(text, fallback string) string {
	s := strings.TrimSpace(text)

	m := anyTagRe.FindStringSubmatch(s)
	if m == nil {
		return "[" + fallback + "]" + s
	}

	emo := strings.ToLower(m[1])
	body := strings.TrimSpace(s[len(m[0]):])
	// Stray tags inside the body confuse the expression engine downstream.
	body = strings.TrimSpace(bodyTagRe.ReplaceAllString(body, ""))

	if !knownTagsSet[emo] {
		emo = fallback
	}
	return "[" + emo + "]" + body
}

// StripTag removes a recognized leading emotion tag, returning the bare
// body. Text fed back into a generation prompt must never carry control
// tags, or the model starts quoting and multiplying them.
func StripTag(text string) string {
	s := strings.TrimSpace(text)
	if m := knownTagRe.FindString(s); m != "" {
		return strings.TrimSpace(s[len(m):])
	}
	return s
}

// SplitTag separates a recognized leading tag from the body. ok is false
// when the text has no recognized tag.
func SplitTag(text string) (tag, body string, ok bool) {
	s := strings.TrimSpace(text)
	m := knownTagRe.FindStringSubmatch(s)
	if m == nil {
		return "", s, false
	}
	return strings.ToLower(m[1]), strings.TrimSpace(s[len(m[0]):]), true
}
