package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackTag(t *testing.T) {
	tests := []struct {
		emotion  Emotion
		expected string
	}{
		{EmotionCheerful, "happy"},
		{EmotionFriendly, "relaxed"},
		{EmotionCalm, "neutral"},
		{EmotionEnergetic, "surprised"},
		{Emotion("unknown"), "neutral"},
	}
	for _, tt := range tests {
		p := Persona{Emotion: tt.emotion}
		assert.Equal(t, tt.expected, p.FallbackTag(), "emotion %s", tt.emotion)
	}
}

func TestDefaultPair(t *testing.T) {
	a, b := DefaultPair()

	require.NoError(t, a.Validate())
	require.NoError(t, b.Validate())

	assert.Equal(t, "A", a.ID)
	assert.Equal(t, "B", b.ID)
	assert.Equal(t, a.Name, b.PartnerName)
	assert.Equal(t, b.Name, a.PartnerName)
	assert.NotEqual(t, a.DispatchBase, b.DispatchBase)
	assert.True(t, b.DirectQuestionStyle)
	assert.False(t, a.DirectQuestionStyle)
}

func TestSystemPrompt(t *testing.T) {
	a, b := DefaultPair()

	withName := a.SystemPrompt(true)
	assert.Contains(t, withName, a.PartnerName)
	assert.Contains(t, withName, "1回だけ呼ぶ")

	withoutName := a.SystemPrompt(false)
	assert.Contains(t, withoutName, "名前を呼ばない")

	// The direct-question rule follows the capability flag, not the name.
	assert.NotContains(t, withName, "質問スタイルのルール")
	assert.Contains(t, b.SystemPrompt(false), "質問スタイルのルール")

	renamed := b
	renamed.Name = "別の名前"
	assert.Contains(t, renamed.SystemPrompt(false), "質問スタイルのルール")
}

func TestLoadPair_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	content := strings.TrimSpace(`
a:
  name: アリス
  partner_name: ボブ
  temperature: 0.9
b:
  name: ボブ
  partner_name: アリス
`)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	a, b, err := LoadPair(path)
	require.NoError(t, err)

	assert.Equal(t, "アリス", a.Name)
	assert.Equal(t, 0.9, a.Temperature)
	// Omitted fields keep their defaults.
	assert.Equal(t, "http://localhost:3000", a.DispatchBase)
	assert.Equal(t, "speakerA", a.ClientID)
	assert.Equal(t, EmotionCheerful, a.Emotion)
	assert.Equal(t, "ボブ", b.Name)
	assert.Equal(t, 0.55, b.Temperature)
}

func TestLoadPair_EmptyPathUsesDefaults(t *testing.T) {
	a, b, err := LoadPair("")
	require.NoError(t, err)
	da, db := DefaultPair()
	assert.Equal(t, da, a)
	assert.Equal(t, db, b)
}

func TestLoadPair_InvalidEmotion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a:\n  emotion: angry\n"), 0644))

	_, _, err := LoadPair(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown emotion")
}
