package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_, _ = w.Write([]byte(`{"id":"m","content":[{"type":"text","text":"Expenses:Transport"}]}`))
	}))
	defer server.Close()

	client, err := newAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "be brief", "where?")
	require.NoError(t, err)
	assert.Equal(t, "Expenses:Transport", out)
	assert.Equal(t, "be brief", captured["system"])
	assert.Equal(t, "claude-3-5-haiku-latest", captured["model"])
}

func TestAnthropicClient_Errors(t *testing.T) {
	_, err := newAnthropicClient(Config{})
	require.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	client, err := newAnthropicClient(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())

	c, err = NewClient(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Provider())

	_, err = NewClient(Config{Provider: "anthropic"})
	require.Error(t, err)

	_, err = NewClient(Config{Provider: "gemini", APIKey: "k"})
	require.Error(t, err)
}
