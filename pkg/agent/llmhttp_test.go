package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexagent/nexagent/pkg/models"
)

func TestHTTPLLMClient_Generate(t *testing.T) {
	var got llmRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(llmResponse{
			Content: "thinking",
			ToolCalls: []ToolCall{
				{Name: "web_search", Args: map[string]any{"query": "hotels"}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPLLMClient(srv.URL, "secret")
	out, err := c.Generate(context.Background(), GenerateInput{
		SystemPrompt: "be helpful",
		Messages: []HistoryMessage{
			{Role: models.RoleUser, Content: "find hotels"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "be helpful", got.SystemPrompt)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "thinking", out.Content)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "web_search", out.ToolCalls[0].Name)
	assert.Equal(t, "hotels", out.ToolCalls[0].Args["query"])
}

func TestHTTPLLMClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPLLMClient(srv.URL, "")
	_, err := c.Generate(context.Background(), GenerateInput{SystemPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.Contains(t, err.Error(), "model overloaded")
}
