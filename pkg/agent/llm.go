// Package agent drives the think-act loop against an LLM oracle: dynamic
// step budgets, tool dispatch, timeline recording, and cooperative
// cancellation.
package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/tools"
)

var errScriptExhausted = errors.New("scripted llm: no completions left")

// HistoryMessage is one entry in the history presented to the model.
type HistoryMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
	// ToolName is set on tool-role messages to attribute the result.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall is a structured tool request parsed from a model response.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Completion is one model response: free text, structured tool calls, or
// both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// GenerateInput is everything the model sees for one turn.
type GenerateInput struct {
	SystemPrompt string
	Messages     []HistoryMessage
	Tools        []tools.Definition
}

// LLMClient is the oracle interface. Transport, retries, and token
// accounting live behind it.
type LLMClient interface {
	Generate(ctx context.Context, in GenerateInput) (*Completion, error)
}

// ScriptedLLMClient replays a fixed sequence of completions. Used by tests
// and the e2e harness; exhausting the script is an error so scenarios fail
// loudly when the loop takes more turns than expected.
type ScriptedLLMClient struct {
	mu     sync.Mutex
	script []Completion
	calls  []GenerateInput
}

func NewScriptedLLMClient(script ...Completion) *ScriptedLLMClient {
	return &ScriptedLLMClient{script: script}
}

// Generate implements LLMClient.
func (c *ScriptedLLMClient) Generate(_ context.Context, in GenerateInput) (*Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, in)
	if len(c.script) == 0 {
		return nil, errScriptExhausted
	}
	next := c.script[0]
	c.script = c.script[1:]
	return &next, nil
}

// Calls returns every input the client has seen, for assertions.
func (c *ScriptedLLMClient) Calls() []GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]GenerateInput, len(c.calls))
	copy(out, c.calls)
	return out
}
