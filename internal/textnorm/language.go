package textnorm

// JapaneseMinChars is the minimum count of Japanese-script runes an
// utterance needs to pass the language gate. Models occasionally slip into
// English; anything under this is treated as a wrong-language response.
const JapaneseMinChars = 6

// IsJapanese reports whether the text contains enough hiragana, katakana
// or kanji to count as a Japanese utterance.
func IsJapanese(text string) bool {
	count := 0
	for _, r := range text {
		if isJapaneseRune(r) {
			count++
			if count >= JapaneseMinChars {
				return true
			}
		}
	}
	return false
}

func isJapaneseRune(r rune) bool {
	switch {
	case r >= 'ぁ' && r <= 'ん':
		return true
	case r >= 'ァ' && r <= 'ヶ':
		return true
	case r >= '一' && r <= '龠':
		return true
	}
	return false
}
