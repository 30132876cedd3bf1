package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"companion-server/internal/ai"
)

// fakeCompletionServer поднимает HTTP заглушку OpenAI-совместимого API.
func fakeCompletionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func completionResponse(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func newTestClient(t *testing.T, baseURL string) *ai.Client {
	t.Helper()
	client, err := ai.New(ai.Config{
		APIKey:       "test-key",
		BaseURL:      baseURL + "/v1",
		DefaultModel: "test-model",
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestClientGenerateText(t *testing.T) {
	ctx := context.Background()
	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: "you are a test"},
		{Role: ai.RoleUser, Content: "say hi"},
	}

	t.Run("Returns trimmed text and usage", func(t *testing.T) {
		server := fakeCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(completionResponse("  hi there  ", 12, 4))
		})
		client := newTestClient(t, server.URL)

		text, usage, err := client.GenerateText(ctx, "test-caller", messages, ai.GenerationParams{})

		require.NoError(t, err)
		assert.Equal(t, "hi there", text)
		assert.Equal(t, 12, usage.PromptTokens)
		assert.Equal(t, 4, usage.CompletionTokens)
		assert.Equal(t, 16, usage.TotalTokens)
		assert.Greater(t, usage.EstimatedCostUSD, 0.0)
	})

	t.Run("Retries server errors before succeeding", func(t *testing.T) {
		var calls atomic.Int32
		server := fakeCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(completionResponse("recovered", 1, 1))
		})
		client := newTestClient(t, server.URL)

		text, _, err := client.GenerateText(ctx, "test-caller", messages, ai.GenerationParams{})

		require.NoError(t, err)
		assert.Equal(t, "recovered", text)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Empty choices exhaust retries", func(t *testing.T) {
		var calls atomic.Int32
		server := fakeCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-test",
				"object":  "chat.completion",
				"model":   "test-model",
				"choices": []map[string]any{},
			})
		})
		client := newTestClient(t, server.URL)

		_, _, err := client.GenerateText(ctx, "test-caller", messages, ai.GenerationParams{})

		assert.True(t, errors.Is(err, ai.ErrAIGenerationFailed))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Rejects empty message list", func(t *testing.T) {
		server := fakeCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("API must not be called for an empty message list")
		})
		client := newTestClient(t, server.URL)

		_, _, err := client.GenerateText(ctx, "test-caller", nil, ai.GenerationParams{})
		assert.True(t, errors.Is(err, ai.ErrAIGenerationFailed))
	})
}
