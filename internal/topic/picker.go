// Package topic decides what the two personas talk about next. A small
// generation prompt ("topic brain") derives a fresh subject from the
// recent transcript; a static list backs it up when generation fails or
// keeps repeating itself.
package topic

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/daikw/aituberduel/internal/llm"
	"github.com/daikw/aituberduel/internal/textnorm"
)

// Source records where a topic came from.
type Source string

const (
	// SourceInit is the random opener of a fresh session.
	SourceInit Source = "INIT"
	// SourceBrain is a generated topic.
	SourceBrain Source = "BRAIN"
	// SourceFallback is a static topic used after generation failed.
	SourceFallback Source = "FALLBACK"
	// SourceFixed is a static topic picked with generation disabled.
	SourceFixed Source = "FIXED"
)

const (
	// DefaultTemp trades coherence against novelty in generated topics.
	DefaultTemp = 0.75

	// MaxChars caps the length of a topic. Short subjects keep the
	// conversation prompts stable.
	MaxChars = 28

	// Lookback is how many recent utterances the generator gets to see.
	Lookback = 10

	// RepeatAvoid is how many past topics a new one is checked against.
	RepeatAvoid = 2
)

// Fallbacks are safe small-talk subjects that need no generation.
var Fallbacks = []string{
	"最近ハマっていること",
	"最近見た動画や配信",
	"好きな食べ物の話",
	"ちょっとした日常の失敗談",
	"最近気になっているゲームやアプリ",
	"子どもの頃の思い出",
}

// Pick is a chosen topic plus its provenance, shown on the overlay.
type Pick struct {
	Topic  string
	Source Source
	Temp   float64
}

// Line is one transcript entry fed to the generator.
type Line struct {
	Who  string
	Text string
}

// Chatter is the slice of the generation client the picker needs.
type Chatter interface {
	Chat(ctx context.Context, label, model string, messages []llm.Message, temperature float64) (string, error)
}

// Picker produces topics for a running session.
type Picker struct {
	client  Chatter
	model   string
	enabled bool
	temp    float64

	// randIndex is swappable in tests.
	randIndex func(n int) int
}

// New creates a Picker that generates topics with the given model, or
// falls back to the static list only when enabled is false.
func New(client Chatter, model string, enabled bool, temp float64) *Picker {
	if temp <= 0 {
		temp = DefaultTemp
	}
	return &Picker{
		client:    client,
		model:     model,
		enabled:   enabled,
		temp:      temp,
		randIndex: rand.Intn,
	}
}

// Initial returns a random static topic for a fresh session.
func (p *Picker) Initial() Pick {
	return Pick{
		Topic:  Fallbacks[p.randIndex(len(Fallbacks))],
		Source: SourceInit,
		Temp:   p.temp,
	}
}

// Next decides the subject of the next conversation segment. Generation
// failures, empty results and near-duplicates of recent topics all fall
// back to the static list, so the session never stalls on topic choice.
func (p *Picker) Next(ctx context.Context, transcript []Line, lastTopic string, used []string) Pick {
	if !p.enabled {
		return Pick{Topic: p.static(), Source: SourceFixed, Temp: p.temp}
	}

	t, err := p.generate(ctx, transcript, lastTopic, used)
	if err != nil {
		log.Warn().Err(err).Msg("Topic generation failed, using fallback")
	} else if t != "" {
		return Pick{Topic: t, Source: SourceBrain, Temp: p.temp}
	}

	return Pick{Topic: p.static(), Source: SourceFallback, Temp: p.temp}
}

func (p *Picker) static() string {
	return Fallbacks[p.randIndex(len(Fallbacks))]
}

func (p *Picker) generate(ctx context.Context, transcript []Line, lastTopic string, used []string) (string, error) {
	system := brainPrompt(lastTopic, recentTranscript(transcript))
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: "次の話題を1つだけ出して。余計な説明は不要。話題だけ。"},
	}

	raw, err := p.client.Chat(ctx, "topic brain", p.model, messages, p.temp)
	if err != nil {
		return "", err
	}
	raw = SoftClip(raw)

	if !textnorm.IsJapanese(raw) {
		rewrite := []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: "英語は禁止。日本語の話題だけを1つ、短く出して。"},
		}
		raw, err = p.client.Chat(ctx, "topic brain rewrite", p.model, rewrite, rewriteTemp(p.temp))
		if err != nil {
			return "", err
		}
		raw = SoftClip(raw)
	}

	for i := max(0, len(used)-RepeatAvoid); i < len(used); i++ {
		if TooSimilar(raw, used[i]) {
			return "", nil
		}
	}
	if TooSimilar(raw, lastTopic) {
		return "", nil
	}
	return raw, nil
}

func rewriteTemp(t float64) float64 {
	if t-0.1 < 0.35 {
		return 0.35
	}
	return t - 0.1
}

func brainPrompt(lastTopic, transcript string) string {
	return strings.TrimSpace(fmt.Sprintf(`
あなたは会話を活性化させる「話題生成AI」です。人格は演じません。
日本語のみ。出力は「話題」1つだけ（1行）にしてください。

条件:
- 直近の会話と少し関係はあるが、少しだけ意外性（ズラし）を入れる
- 雑談向き（軽いテーマ）
- 重い話（政治/事件/暴力/差別/自傷/露骨な性的話題）は避ける
- 話題は短く（%d文字以内が理想）
- 「質問文」ではなく「題材（名詞句）」にする
- 直前の話題「%s」と同じ/ほぼ同じは避ける
- もし迷ったら、日常・趣味・食・ゲーム・配信・買い物・季節・子どもの頃等から選ぶ

最近の会話（抜粋）:
%s`, MaxChars, lastTopic, transcript))
}

// recentTranscript folds the last Lookback utterances into a prompt
// excerpt. Emotion tags are removed so the generator only sees prose.
func recentTranscript(lines []Line) string {
	if len(lines) > Lookback {
		lines = lines[len(lines)-Lookback:]
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.Who+": "+oneLine(textnorm.StripTag(l.Text)))
	}
	return strings.Join(parts, "\n")
}

var (
	spaceRe         = regexp.MustCompile(`\s+`)
	leadingDecorRe  = regexp.MustCompile(`^["'「『（(【\[]+`)
	trailingDecorRe = regexp.MustCompile(`["'」』）)】\]]+$`)
	trailingPunctRe = regexp.MustCompile(`[。！？!?]+$`)
)

func oneLine(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// SoftClip tidies a raw generated topic into a short single-line
// subject: quotes and brackets stripped, trailing punctuation dropped,
// length capped at MaxChars runes.
func SoftClip(s string) string {
	s = oneLine(s)
	s = leadingDecorRe.ReplaceAllString(s, "")
	s = trailingDecorRe.ReplaceAllString(s, "")
	s = trailingPunctRe.ReplaceAllString(s, "")
	if r := []rune(s); len(r) > MaxChars {
		s = string(r[:MaxChars])
	}
	return s
}

// TooSimilar reports whether two topics are close enough to count as a
// repeat. Containment in either direction, or two or more shared
// tokens, counts as similar.
func TooSimilar(a, b string) bool {
	a = oneLine(a)
	b = oneLine(b)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	common := 0
	bw := tokenSet(b)
	for w := range tokenSet(a) {
		if bw[w] {
			common++
		}
	}
	return common >= 2
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(" 　・、。！？!?", r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
