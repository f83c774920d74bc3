package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// TerminateName is the sentinel tool the model calls to signal completion.
const TerminateName = "terminate"

// Terminate statuses.
const (
	TerminateSuccess = "success"
	TerminateFailure = "failure"
)

// TerminateTool is a zero-side-effect tool whose sole purpose is to let the
// model signal "done" with a status and an optional detailed payload. The
// agent loop watches for calls to it and closes the run.
type TerminateTool struct{}

// NewTerminateTool creates the sentinel tool.
func NewTerminateTool() *TerminateTool { return &TerminateTool{} }

// Definition implements Tool.
func (t *TerminateTool) Definition() Definition {
	return Definition{
		Name:        TerminateName,
		Description: "Signal that the task is complete. Call this with the final status and, optionally, the detailed final output.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["success", "failure"], "description": "Whether the task succeeded"},
				"message": {"type": "string", "description": "Optional detailed final output"}
			},
			"required": ["status"]
		}`),
	}
}

// Execute implements Tool.
func (t *TerminateTool) Execute(_ context.Context, _ *Invocation, args map[string]any) (*Result, error) {
	status, message := ParseTerminateArgs(args)
	if message != "" {
		return Ok(message), nil
	}
	return Ok(fmt.Sprintf("Task terminated with status %s.", status)), nil
}

// ParseTerminateArgs extracts the status and payload from a terminate call.
func ParseTerminateArgs(args map[string]any) (status, message string) {
	status = TerminateSuccess
	if s, ok := args["status"].(string); ok && s != "" {
		status = s
	}
	if m, ok := args["message"].(string); ok {
		message = m
	}
	return status, message
}
