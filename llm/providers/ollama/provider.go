package ollama

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
	chatPath = "/api/chat"
	tagsPath = "/api/tags"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// Codec speaks the local chat protocol.
type Codec struct{}

// AnalyzeRequest builds a non-streaming chat request in JSON mode.
func (Codec) AnalyzeRequest(ctx context.Context, cfg llm.ProviderConfig, prompt providers.Prompt) (*http.Request, error) {
	body := chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
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

// AnalyzeText returns the reply message content.
func (Codec) AnalyzeText(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("server error: %s", resp.Error)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("response message is empty")
	}
	return resp.Message.Content, nil
}

// HealthRequest lists local models.
func (Codec) HealthRequest(ctx context.Context, cfg llm.ProviderConfig) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(cfg, tagsPath), nil)
	if err != nil {
		return nil, err
	}
	setHeaders(req, cfg.APIKey)
	return req, nil
}

// New creates a local-model analysis provider.
func New(cfg llm.ProviderConfig, opts ...providers.Option) (*providers.HTTPProvider, error) {
	return providers.NewHTTPProvider(cfg, Codec{}, opts...)
}

func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func endpoint(cfg llm.ProviderConfig, path string) string {
	return strings.TrimRight(cfg.Endpoint, "/") + path
}
