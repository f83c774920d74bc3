// Package tools owns the set of callable tools, their dependency graph, and
// typed dispatch with result envelopes.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexagent/nexagent/pkg/timeline"
)

// Definition describes a callable tool.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema for the arguments object
	// RequiredTools lists tools that must be registered for this one to run.
	RequiredTools []string `json:"required_tools,omitempty"`
	// Heavy marks tools with model-load-scale startup cost; they get the
	// longer dispatch timeout.
	Heavy bool `json:"-"`
}

// Result is the tool result envelope. Exactly one of Output and Error is set.
type Result struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// IsError reports whether the result carries an error.
func (r *Result) IsError() bool { return r.Error != "" }

// Content returns whichever side of the envelope is populated.
func (r *Result) Content() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Output
}

// Ok builds a success result.
func Ok(output string) *Result { return &Result{Output: output} }

// Fail builds an error result.
func Fail(format string, args ...any) *Result {
	return &Result{Error: fmt.Sprintf(format, args...)}
}

// Invocation carries per-call context into a tool execution. Tools receive it
// explicitly instead of holding back-references to the agent.
type Invocation struct {
	ConversationID string
	Timeline       *timeline.Store
	Registry       *Registry
	// ParentEventID nests the dispatch's timeline events under the
	// agent_thinking step that requested the call.
	ParentEventID string
}

// Tool is a named capability callable from the agent loop.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, inv *Invocation, args map[string]any) (*Result, error)
}
