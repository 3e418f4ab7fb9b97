package openai

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
	chatPath   = "/v1/chat/completions"
	modelsPath = "/v1/models"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Codec speaks the Chat Completions protocol.
type Codec struct{}

// AnalyzeRequest builds a chat completion request asking for a JSON object.
func (Codec) AnalyzeRequest(ctx context.Context, cfg llm.ProviderConfig, prompt providers.Prompt) (*http.Request, error) {
	body := chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(cfg, chatPath), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	setHeaders(req, cfg.APIKey)
	return req, nil
}

// AnalyzeText returns the first choice's message content.
func (Codec) AnalyzeText(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
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

// New creates a Chat Completions analysis provider.
func New(cfg llm.ProviderConfig, opts ...providers.Option) (*providers.HTTPProvider, error) {
	return providers.NewHTTPProvider(cfg, Codec{}, opts...)
}

func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func endpoint(cfg llm.ProviderConfig, path string) string {
	return strings.TrimRight(cfg.Endpoint, "/") + path
}
