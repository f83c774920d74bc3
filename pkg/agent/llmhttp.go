package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nexagent/nexagent/pkg/tools"
)

// HTTPLLMClient talks to an external completion service over a minimal JSON
// contract: POST the turn, receive text plus optional structured tool calls.
// The service owns model selection, sampling, and token accounting.
type HTTPLLMClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPLLMClient(endpoint, apiKey string) *HTTPLLMClient {
	return &HTTPLLMClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

type llmRequest struct {
	SystemPrompt string             `json:"system_prompt"`
	Messages     []HistoryMessage   `json:"messages"`
	Tools        []tools.Definition `json:"tools,omitempty"`
}

type llmResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Generate implements LLMClient.
func (c *HTTPLLMClient) Generate(ctx context.Context, in GenerateInput) (*Completion, error) {
	body, err := json.Marshal(&llmRequest{
		SystemPrompt: in.SystemPrompt,
		Messages:     in.Messages,
		Tools:        in.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completion service returned HTTP %d: %s", resp.StatusCode, raw)
	}

	var out llmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}
	return &Completion{Content: out.Content, ToolCalls: out.ToolCalls}, nil
}
