// Package textnorm reshapes generated utterances before dispatch: emotion
// tag enforcement, banned-opener and stock-ending substitution, and
// sentence-boundary clipping. All transforms are pure apart from the
// one-step anti-repetition memory in the selectors.
package textnorm

import (
	"math/rand"
	"regexp"
	"strings"
)

// DefaultMaxChars is the per-utterance character budget. Shorter keeps the
// narration pacing stable.
const DefaultMaxChars = 220

// Openers that turn every reply into the same template. The matched prefix
// is replaced with one of starterAlternatives.
var starterBlacklist = []*regexp.Regexp{
	regexp.MustCompile(`^はい[！、]`),
	regexp.MustCompile(`^あっ[、！]`),
	regexp.MustCompile(`^えっと[、！]`),
	regexp.MustCompile(`^なるほど[、！]`),
	regexp.MustCompile(`^うーん[、！]`),
}

var starterAlternatives = []string{
	"", // straight to the point
	"そうだね、",
	"たしかに、",
	"個人的には、",
	"感覚的には、",
}

// endingPattern rewrites a stock sentence-final phrase. The alternatives
// must not themselves match any pattern, otherwise normalization would
// never reach a fixed point.
type endingPattern struct {
	re   *regexp.Regexp
	alts []string
}

var endingPatterns = []endingPattern{
	{re: regexp.MustCompile(`だよね[。！!？?]*\s*$`), alts: []string{"だと思う", "って感じ"}},
	{re: regexp.MustCompile(`かな[。！!？?]*\s*$`), alts: []string{"って思う", "だと思う", "って感じ"}},
	{re: regexp.MustCompile(`かも[。！!？?]*\s*$`), alts: []string{"って思う", "だと思う", "って感じ"}},
}

var trailingPunctRe = regexp.MustCompile(`[。！!？?]+$`)

// Normalizer applies the opener/ending filters with one-step memory so the
// same substitution is not picked twice in a row.
type Normalizer struct {
	maxChars    int
	lastStarter string
	lastEnding  string

	// randInt returns a value in [0,n); swappable in tests.
	randInt func(n int) int
}

// New returns a Normalizer with the given character budget (0 means
// DefaultMaxChars).
func New(maxChars int) *Normalizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Normalizer{maxChars: maxChars, randInt: rand.Intn}
}

// NormalizeStarter rewrites a blacklisted opener. A recognized leading
// emotion tag is held aside so only the body is pattern-matched.
func (n *Normalizer) NormalizeStarter(text string) string {
	tag, body, tagged := SplitTag(text)
	fixed := n.normalizeStarterBody(body)
	if !tagged {
		return fixed
	}
	return "[" + tag + "]" + fixed
}

func (n *Normalizer) normalizeStarterBody(body string) string {
	s := strings.TrimSpace(body)
	for _, re := range starterBlacklist {
		if !re.MatchString(s) {
			continue
		}
		alt := starterAlternatives[n.randInt(len(starterAlternatives))]
		for alt == n.lastStarter {
			alt = starterAlternatives[n.randInt(len(starterAlternatives))]
		}
		n.lastStarter = alt
		return re.ReplaceAllString(s, alt)
	}
	return s
}

// NormalizeEnding rewrites a stock sentence-final phrase while preserving
// whether the utterance ended as a question. Tag-aware like
// NormalizeStarter.
func (n *Normalizer) NormalizeEnding(text string) string {
	tag, body, tagged := SplitTag(text)
	fixed := n.normalizeEndingBody(body)
	if !tagged {
		return fixed
	}
	return "[" + tag + "]" + fixed
}

func (n *Normalizer) normalizeEndingBody(body string) string {
	s := strings.TrimSpace(body)

	punct := trailingPunctRe.FindString(s)
	core := strings.TrimSuffix(s, punct)

	for _, p := range endingPatterns {
		if !p.re.MatchString(core) {
			continue
		}
		alt := n.pickEndingAlt(p.alts)

		// A question must stay a question.
		if strings.ContainsAny(punct, "？?") {
			return p.re.ReplaceAllString(core, alt) + "？"
		}
		if punct == "" {
			punct = "。"
		}
		return p.re.ReplaceAllString(core, alt) + punct
	}
	return s
}

func (n *Normalizer) pickEndingAlt(alts []string) string {
	if len(alts) == 1 {
		n.lastEnding = alts[0]
		return alts[0]
	}
	alt := alts[n.randInt(len(alts))]
	for alt == n.lastEnding {
		alt = alts[n.randInt(len(alts))]
	}
	n.lastEnding = alt
	return alt
}

// Clip cuts the text to the character budget, preferring the last complete
// sentence inside it. With no sentence boundary the tail punctuation is
// dropped and an ellipsis appended, so a cut never ends mid-clause.
func (n *Normalizer) Clip(text string) string {
	return ClipTo(text, n.maxChars)
}

// ClipTo is Clip with an explicit budget.
func ClipTo(text string, maxChars int) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := runes[:maxChars]
	for i := len(cut) - 1; i >= 0; i-- {
		if isTerminalPunct(cut[i]) {
			return string(cut[:i+1])
		}
	}

	trimmed := strings.TrimRight(string(cut), "、。！？!?")
	return trimmed + "…"
}

func isTerminalPunct(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?':
		return true
	}
	return false
}
