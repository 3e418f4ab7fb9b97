package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/providers"
	"github.com/BaSui01/biaslens/llm/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) llm.ProviderConfig {
	return llm.ProviderConfig{
		Name:         "claude",
		Kind:         llm.KindAnthropic,
		Endpoint:     url,
		APIKey:       "ak-test",
		Model:        "claude-3-5-haiku-latest",
		Timeout:      5 * time.Second,
		RateLimitRPM: 600,
	}
}

func TestProvider_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, providers.SystemInstruction, req.System)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "```json\n{\"score\":61,\"lean\":\"center-right\","},
				{"type": "text", "text": "\"factual_accuracy\":74,\"emotional_tone\":45,\"confidence\":69}\n```"},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	p, err := New(testConfig(server.URL), providers.WithTokenizer(tokenizer.NewEstimatorTokenizer()))
	require.NoError(t, err)

	result, err := p.Analyze(context.Background(), &llm.AnalysisRequest{Title: "Tariffs", Body: "New tariffs were announced."})
	require.NoError(t, err)
	assert.Equal(t, 61, result.Score)
	assert.Equal(t, llm.LeanCenterRight, result.Lean)
	assert.Equal(t, 69, result.Confidence)
	assert.Equal(t, "claude", result.Provider)
}

func TestProvider_OverloadedIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	p, err := New(testConfig(server.URL), providers.WithTokenizer(tokenizer.NewEstimatorTokenizer()))
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), &llm.AnalysisRequest{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.Equal(t, llm.KindNetwork, llm.KindOf(err))
	assert.True(t, llm.IsRetryable(err))
}

func TestCodec_AnalyzeTextWithoutText(t *testing.T) {
	_, err := Codec{}.AnalyzeText([]byte(`{"content":[{"type":"tool_use"}],"stop_reason":"tool_use"}`))
	assert.ErrorContains(t, err, "tool_use")
}
