package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aeo-optimizer/backend/config"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	tests := []struct {
		name     string
		attempt  int
		apiDelay time.Duration
		want     time.Duration
	}{
		{"first retry", 0, 0, 1 * time.Second},
		{"second retry doubles", 1, 0, 2 * time.Second},
		{"capped at max", 5, 0, 5 * time.Second},
		{"api delay replaces base", 0, 3 * time.Second, 3 * time.Second},
		{"api delay capped", 1, 4 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.CalculateBackoff(tt.attempt, tt.apiDelay))
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.True(t, IsRateLimitError(errors.New("Error 429, Message: slow down")))
	assert.True(t, IsRateLimitError(errors.New("Status: RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429 ... Please retry in 2.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 2500*time.Millisecond, ExtractRetryDelay(err))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("boom")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestWithRetry(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	logger := arbor.NewNoOpLogger()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		got, err := withRetry(context.Background(), cfg, logger, "test", func() (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), cfg, logger, "test", func() (int, error) {
			calls++
			return 0, errors.New("permanent")
		})
		assert.EqualError(t, err, "permanent")
		assert.Equal(t, 3, calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := withRetry(ctx, cfg, logger, "test", func() (int, error) {
			calls++
			cancel()
			return 0, errors.New("cancelled mid-call")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestValidateMessages(t *testing.T) {
	_, err := validateMessages(nil)
	assert.Error(t, err)

	_, err = validateMessages([]Message{{Role: "assistant", Content: "hi"}})
	assert.Error(t, err)

	system, err := validateMessages([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief", system)
}

func TestConvertToGenaiSchema(t *testing.T) {
	schema, err := convertToGenaiSchema(map[string]interface{}{
		"type":     "object",
		"required": []string{"score"},
		"properties": map[string]interface{}{
			"score": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "enum": []interface{}{"a", "b"}},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, schema)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"score"}, schema.Required)
	require.Contains(t, schema.Properties, "score")
	assert.Equal(t, genai.TypeInteger, schema.Properties["score"].Type)
	require.NotNil(t, schema.Properties["score"].Maximum)
	assert.Equal(t, 100.0, *schema.Properties["score"].Maximum)
	assert.Equal(t, []string{"a", "b"}, schema.Properties["tags"].Items.Enum)

	empty, err := convertToGenaiSchema(nil)
	assert.NoError(t, err)
	assert.Nil(t, empty)

	_, err = convertToGenaiSchema(map[string]interface{}{"type": "tuple"})
	assert.Error(t, err)
}

func TestClaudeProvider_GenerateContent(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"ok\": true}"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig().Claude
	cfg.Model = "claude-test"
	p := NewClaudeProvider("test-key", cfg, arbor.NewNoOpLogger(), option.WithBaseURL(server.URL))
	assert.Equal(t, ProviderClaude, p.GetProviderType())

	resp, err := p.GenerateContent(context.Background(), &ContentRequest{
		SystemInstruction: "Return JSON",
		Messages:          []Message{{Role: "user", Content: "digest"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Text)
	assert.Equal(t, ProviderClaude, resp.Provider)
	assert.Equal(t, "claude-test", resp.Model)

	assert.Equal(t, "claude-test", received["model"])
	assert.EqualValues(t, cfg.MaxTokens, received["max_tokens"])
	assert.NotNil(t, received["system"])
	assert.NoError(t, p.Close())
}

func TestGeminiProvider_GenerateContent(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		assert.True(t, strings.Contains(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"ok\": true}"}]}}]
		}`))
	}))
	defer server.Close()

	cfg := config.NewDefaultConfig().Gemini
	cfg.Model = "gemini-test"
	p, err := NewGeminiProvider(context.Background(), "test-key", cfg, arbor.NewNoOpLogger(), server.URL+"/")
	require.NoError(t, err)

	resp, err := p.GenerateContent(context.Background(), &ContentRequest{
		SystemInstruction: "Return JSON",
		Messages:          []Message{{Role: "user", Content: "digest"}},
		OutputSchema:      map[string]interface{}{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Text)
	assert.Equal(t, ProviderGemini, resp.Provider)

	genConfig, ok := received["generationConfig"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "application/json", genConfig["responseMimeType"])

	require.NoError(t, p.Close())
	_, err = p.GenerateContent(context.Background(), &ContentRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	assert.Error(t, err)
}

func TestNewProvider_MissingKey(t *testing.T) {
	t.Setenv("AEO_CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := config.NewDefaultConfig()
	_, err := NewProvider(context.Background(), cfg, arbor.NewNoOpLogger())
	assert.Error(t, err)

	cfg.LLM.DefaultProvider = "openai"
	_, err = NewProvider(context.Background(), cfg, arbor.NewNoOpLogger())
	assert.Error(t, err)
}
