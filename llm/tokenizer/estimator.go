package tokenizer

import (
	"unicode"
	"unicode/utf8"
)

// EstimatorTokenizer estimates tokens from character counts. CJK runes count
// as roughly 1.5 characters per token, everything else as 4.
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer creates an estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	n := int(e.weight(text))
	if n == 0 {
		n = 1
	}
	return n, nil
}

func (e *EstimatorTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 || e.weight(text) <= float64(maxTokens) {
		return text, nil
	}
	budget := float64(maxTokens)
	var used float64
	for i, r := range text {
		used += runeWeight(r)
		if used > budget {
			return trimToWord(text[:i]), nil
		}
	}
	return text, nil
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

func (e *EstimatorTokenizer) weight(text string) float64 {
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	return float64(cjk)/1.5 + float64(total-cjk)/4.0
}

func runeWeight(r rune) float64 {
	if isCJK(r) {
		return 1 / 1.5
	}
	return 1 / 4.0
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
