// Package persona holds the immutable configuration of the two
// conversational characters: identity, presentation-backend address,
// generation model and style parameters. Two personas exist for the
// lifetime of the process and are never mutated after loading.
package persona

import (
	"fmt"

	"github.com/daikw/aituberduel/internal/textnorm"
)

// Emotion is the persona's broad character category. It decides the
// fallback expression tag when the model forgets to emit one.
type Emotion string

const (
	EmotionCalm      Emotion = "calm"
	EmotionFriendly  Emotion = "friendly"
	EmotionCheerful  Emotion = "cheerful"
	EmotionEnergetic Emotion = "energetic"
)

// Emotions lists the valid categories.
var Emotions = []Emotion{EmotionCalm, EmotionFriendly, EmotionCheerful, EmotionEnergetic}

// Persona is one of the two configured conversational identities.
type Persona struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	PartnerName string `yaml:"partner_name"`
	// DispatchBase is the persona's presentation backend (AITuberKit).
	DispatchBase string  `yaml:"dispatch_base"`
	ClientID     string  `yaml:"client_id"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	Emotion      Emotion `yaml:"emotion"`

	// Intro is the fixed re-introduction line used by the periodic reset,
	// emotion tag included.
	Intro string `yaml:"intro"`

	// DirectQuestionStyle adds the prompt rule that questions must be
	// asked plainly instead of in a hedging tone. Decided here at
	// configuration time; nothing branches on the display name at runtime.
	DirectQuestionStyle bool `yaml:"direct_question_style"`
}

// DefaultPair returns the built-in speaker pair.
func DefaultPair() (Persona, Persona) {
	a := Persona{
		ID:           "A",
		Name:         "マヌカ",
		PartnerName:  "真冬",
		DispatchBase: "http://localhost:3000",
		ClientID:     "speakerA",
		Model:        "gemma3:12b",
		Temperature:  0.75,
		Emotion:      EmotionCheerful,
		Intro:        "[happy]改めて、マヌカだよ。真冬と一緒にゆるく雑談してるよ。初見さんも気軽にね！",
	}
	b := Persona{
		ID:           "B",
		Name:         "真冬",
		PartnerName:  "マヌカ",
		DispatchBase: "http://localhost:3001",
		ClientID:     "speakerB",
		Model:        "gemma3:12b",
		Temperature:  0.55,
		Emotion:      EmotionFriendly,
		Intro:        "[relaxed]改めて、真冬だよ。マヌカとまったり雑談してるよ。途中参加も歓迎〜。",

		DirectQuestionStyle: true,
	}
	return a, b
}

// FallbackTag maps the persona's emotion category to the expression tag
// used when generation output carries no recognized tag. Keeps the
// character's face moving even on untagged output.
func (p Persona) FallbackTag() string {
	switch p.Emotion {
	case EmotionCheerful:
		return textnorm.TagHappy
	case EmotionFriendly:
		return textnorm.TagRelaxed
	case EmotionCalm:
		return textnorm.TagNeutral
	case EmotionEnergetic:
		return textnorm.TagSurprised
	default:
		return textnorm.TagNeutral
	}
}

// Tag is the short display form used in logs, e.g. "マヌカ(A)".
func (p Persona) Tag() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.ID)
}

// Validate checks the fields a session cannot run without.
func (p Persona) Validate() error {
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("persona needs id and name")
	}
	if p.DispatchBase == "" || p.ClientID == "" {
		return fmt.Errorf("persona %s: dispatch_base and client_id are required", p.ID)
	}
	if p.Model == "" {
		return fmt.Errorf("persona %s: model is required", p.ID)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("persona %s: temperature must be between 0.0 and 2.0", p.ID)
	}
	valid := false
	for _, e := range Emotions {
		if p.Emotion == e {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("persona %s: unknown emotion %q", p.ID, p.Emotion)
	}
	return nil
}
