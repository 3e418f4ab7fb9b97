package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ErrEncodingNotLoaded is returned by TiktokenTokenizer until Load has
// completed successfully.
var ErrEncodingNotLoaded = errors.New("tiktoken encoding not loaded")

// loadEncoding 可在测试中替换
var loadEncoding = tiktoken.GetEncoding

// encodingLoad tracks one in-flight or finished encoding load. GetEncoding may
// fetch BPE files over the network without a deadline, so each encoding is
// loaded at most once per process in its own goroutine.
type encodingLoad struct {
	done chan struct{}
	enc  *tiktoken.Tiktoken
	err  error
}

var (
	encodingsMu sync.Mutex
	encodings   = make(map[string]*encodingLoad)
)

func startLoad(encoding string) *encodingLoad {
	encodingsMu.Lock()
	defer encodingsMu.Unlock()

	if l, ok := encodings[encoding]; ok {
		return l
	}
	l := &encodingLoad{done: make(chan struct{})}
	encodings[encoding] = l
	go func() {
		defer close(l.done)
		enc, err := loadEncoding(encoding)
		if err != nil {
			l.err = fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
			return
		}
		l.enc = enc
	}()
	return l
}

// TiktokenTokenizer uses the tiktoken BPE encodings. It never blocks on the
// encoding load: until Load succeeds every call returns ErrEncodingNotLoaded.
type TiktokenTokenizer struct {
	model    string
	encoding string

	mu   sync.RWMutex
	enc  *tiktoken.Tiktoken
	load *encodingLoad
}

// 模型前缀到编码的映射
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
}

// NewTiktokenTokenizer picks the encoding for model, defaulting to cl100k_base.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	encoding := "cl100k_base"
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			encoding = m.encoding
			break
		}
	}
	return &TiktokenTokenizer{model: model, encoding: encoding}
}

// Load starts the encoding load and waits for it until ctx is done. The load
// keeps running after ctx expires and is picked up by later calls once done.
func (t *TiktokenTokenizer) Load(ctx context.Context) error {
	if t.loaded() != nil {
		return nil
	}
	l := startLoad(t.encoding)
	t.mu.Lock()
	t.load = l
	t.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		return fmt.Errorf("load tiktoken encoding %s: %w", t.encoding, ctx.Err())
	}
	if l.err != nil {
		return l.err
	}
	return nil
}

// loaded returns the encoding without waiting, or nil while it is unavailable.
func (t *TiktokenTokenizer) loaded() *tiktoken.Tiktoken {
	t.mu.RLock()
	enc, l := t.enc, t.load
	t.mu.RUnlock()
	if enc != nil || l == nil {
		return enc
	}

	select {
	case <-l.done:
	default:
		return nil
	}
	if l.err != nil {
		return nil
	}
	t.mu.Lock()
	t.enc = l.enc
	t.mu.Unlock()
	return l.enc
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	enc := t.loaded()
	if enc == nil {
		return 0, ErrEncodingNotLoaded
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return text, nil
	}
	enc := t.loaded()
	if enc == nil {
		return "", ErrEncodingNotLoaded
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return trimToWord(enc.Decode(tokens[:maxTokens])), nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
