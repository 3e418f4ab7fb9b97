package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/providers"
)

const (
	messagesPath = "/v1/messages"
	modelsPath   = "/v1/models"

	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"

	// 分析结果很短，不需要更多输出 token
	defaultMaxTokens = 512
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Codec speaks the Messages protocol.
type Codec struct{}

// AnalyzeRequest builds a messages request.
func (Codec) AnalyzeRequest(ctx context.Context, cfg llm.ProviderConfig, prompt providers.Prompt) (*http.Request, error) {
	body := messagesRequest{
		Model:     cfg.Model,
		System:    prompt.System,
		Messages:  []message{{Role: "user", Content: prompt.User}},
		MaxTokens: defaultMaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(cfg, messagesPath), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	setHeaders(req, cfg.APIKey)
	return req, nil
}

// AnalyzeText joins every text block of the reply.
func (Codec) AnalyzeText(body []byte) (string, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("response has no text content (stop_reason=%s)", resp.StopReason)
	}
	return b.String(), nil
}

// HealthRequest lists models.
func (Codec) HealthRequest(ctx context.Context, cfg llm.ProviderConfig) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(cfg, modelsPath), nil)
	if err != nil {
		return nil, err
	}
	setHeaders(req, cfg.APIKey)
	return req, nil
}

// New creates a Messages analysis provider.
func New(cfg llm.ProviderConfig, opts ...providers.Option) (*providers.HTTPProvider, error) {
	return providers.NewHTTPProvider(cfg, Codec{}, opts...)
}

func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

func endpoint(cfg llm.ProviderConfig, path string) string {
	return strings.TrimRight(cfg.Endpoint, "/") + path
}
