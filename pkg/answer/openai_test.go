package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAICompleter_RequiresKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{})
	assert.Error(t, err)
}

func TestOpenAICompleter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.InDelta(t, 0.6, req["temperature"], 1e-6)
		assert.InDelta(t, 0.95, req["top_p"], 1e-6)
		assert.Equal(t, float64(1500), req["max_tokens"])

		messages := req["messages"].([]any)
		require.Len(t, messages, 1)
		msg := messages[0].(map[string]any)
		assert.Equal(t, "user", msg["role"])
		assert.Equal(t, "hello", msg["content"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "- bullet"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "test-model"})
	require.NoError(t, err)
	assert.Equal(t, "test-model", c.Model())

	got, err := c.Complete(context.Background(), "hello", DefaultCompletionOptions())
	require.NoError(t, err)
	assert.Equal(t, "- bullet", got)
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cmpl-1", "choices": []}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello", DefaultCompletionOptions())
	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAICompleter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello", DefaultCompletionOptions())
	assert.ErrorContains(t, err, "openai completer")
}
