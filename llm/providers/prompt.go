package providers

import (
	"fmt"
	"strings"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/tokenizer"
)

// SystemInstruction is sent to every backend.
const SystemInstruction = `You are a media bias analyst. Assess the article for political lean, factual accuracy and emotional tone.
Respond with a single JSON object and nothing else, using exactly these keys:
  "score": integer 0-100, where 0 is far left, 50 is center and 100 is far right
  "lean": one of "left", "center-left", "center", "center-right", "right"
  "factual_accuracy": integer 0-100, higher means better supported by evidence
  "emotional_tone": integer 0-100, higher means more emotionally charged language
  "confidence": integer 0-100, your confidence in this assessment`

// Prompt 发送给后端的消息
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders req into a prompt, truncating the body to maxTokens
// when maxTokens is positive.
func BuildPrompt(req *llm.AnalysisRequest, tok tokenizer.Tokenizer, maxTokens int) (Prompt, error) {
	body := req.Body
	if maxTokens > 0 && tok != nil {
		truncated, err := tok.Truncate(body, maxTokens)
		if err != nil {
			return Prompt{}, fmt.Errorf("truncate body: %w", err)
		}
		body = truncated
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(req.Title))
	if s := strings.TrimSpace(req.Source); s != "" {
		fmt.Fprintf(&b, "Source: %s\n", s)
	}
	if s := strings.TrimSpace(req.Summary); s != "" {
		fmt.Fprintf(&b, "Summary: %s\n", s)
	}
	b.WriteString("\nArticle:\n")
	b.WriteString(strings.TrimSpace(body))

	return Prompt{System: SystemInstruction, User: b.String()}, nil
}
