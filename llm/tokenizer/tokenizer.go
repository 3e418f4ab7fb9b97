package tokenizer

import (
	"context"
	"strings"
)

// Tokenizer counts tokens and truncates text to a token budget.
type Tokenizer interface {
	// CountTokens returns the number of tokens in text.
	CountTokens(text string) (int, error)
	// Truncate returns the longest prefix of text within maxTokens.
	Truncate(text string, maxTokens int) (string, error)
	// Name identifies the implementation.
	Name() string
}

// Loader is implemented by tokenizers whose data is loaded ahead of use.
type Loader interface {
	Load(ctx context.Context) error
}

// Preload loads tok's data when it implements Loader, waiting at most until
// ctx is done. Tokenizers without data return nil.
func Preload(ctx context.Context, tok Tokenizer) error {
	if l, ok := tok.(Loader); ok {
		return l.Load(ctx)
	}
	return nil
}

// ForModel returns a tiktoken tokenizer for model that uses the character
// estimator until the encoding has been loaded with Preload, and whenever the
// load fails.
func ForModel(model string) Tokenizer {
	return &fallbackTokenizer{
		primary:  NewTiktokenTokenizer(model),
		fallback: NewEstimatorTokenizer(),
	}
}

type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if out, err := f.primary.Truncate(text, maxTokens); err == nil {
		return out, nil
	}
	return f.fallback.Truncate(text, maxTokens)
}

func (f *fallbackTokenizer) Load(ctx context.Context) error {
	return Preload(ctx, f.primary)
}

func (f *fallbackTokenizer) Name() string {
	return f.primary.Name() + "|" + f.fallback.Name()
}

// trimToWord cuts a truncated prefix back to the last whitespace when one is close.
func trimToWord(s string) string {
	idx := strings.LastIndexAny(s, " \n\t")
	if idx > 0 && len(s)-idx < 32 {
		return s[:idx]
	}
	return s
}
