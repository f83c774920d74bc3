package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexagent/nexagent/pkg/config"
	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/timeline"
	"github.com/nexagent/nexagent/pkg/tools"
)

type llmFunc func(ctx context.Context, in GenerateInput) (*Completion, error)

func (f llmFunc) Generate(ctx context.Context, in GenerateInput) (*Completion, error) {
	return f(ctx, in)
}

// echoTool returns its "text" argument.
type echoTool struct{}

func (echoTool) Definition() tools.Definition {
	return tools.Definition{Name: "echo", Description: "echo text back"}
}

func (echoTool) Execute(_ context.Context, _ *tools.Invocation, args map[string]any) (*tools.Result, error) {
	text, _ := args["text"].(string)
	return tools.Ok("echo: " + text), nil
}

func newTestLoop(t *testing.T, llm LLMClient) (*Loop, *CancelRegistry) {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(echoTool{}))
	require.NoError(t, reg.Register(tools.NewTerminateTool()))
	cancels := NewCancelRegistry()
	loop := NewLoop(llm, tools.NewDispatcher(reg, 0, 0), config.Defaults().Agent, cancels)
	return loop, cancels
}

func TestRun_ToolCallThenTerminate(t *testing.T) {
	llm := NewScriptedLLMClient(
		Completion{
			Content:   "Let me look that up.",
			ToolCalls: []ToolCall{{Name: "echo", Args: map[string]any{"text": "hi"}}},
		},
		Completion{
			ToolCalls: []ToolCall{{
				Name: tools.TerminateName,
				Args: map[string]any{"status": "success", "message": "Found it: hi"},
			}},
		},
	)
	loop, _ := newTestLoop(t, llm)
	store := timeline.New("conv-1")

	res, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "look up hi",
		Timeline:       store,
		SystemPrompt:   "you are an agent",
		AllowTools:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, StopTerminated, res.Stop)
	assert.Equal(t, "Found it: hi", res.Content)
	assert.Equal(t, 2, res.Steps)

	// Tool result flowed back into the history the model saw.
	var toolMsgs []HistoryMessage
	for _, m := range res.History {
		if m.Role == models.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 2)
	assert.Equal(t, "echo: hi", toolMsgs[0].Content)

	// Lifecycle events: agent_start closed success with nested tool calls.
	starts := store.GetEvents(timeline.EventFilter{Type: models.EventTypeAgentStart})
	require.Len(t, starts, 1)
	assert.Equal(t, models.StatusSuccess, starts[0].Status)

	calls := store.GetEvents(timeline.EventFilter{Type: models.EventTypeToolCall})
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, starts[0].EventID, c.ParentID)
	}

	stops := store.GetEvents(timeline.EventFilter{Type: models.EventTypeAgentStop})
	assert.Len(t, stops, 1)
}

func TestRun_ChatModePlainAnswerCompletes(t *testing.T) {
	llm := NewScriptedLLMClient(Completion{Content: "Paris is the capital of France."})
	loop, _ := newTestLoop(t, llm)
	store := timeline.New("conv-1")

	res, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "what is the capital of France?",
		Timeline:       store,
		AllowTools:     false,
	})
	require.NoError(t, err)
	assert.Equal(t, StopCompleted, res.Stop)
	assert.Equal(t, "Paris is the capital of France.", res.Content)

	// Chat mode never advertises tools to the model.
	assert.Empty(t, llm.Calls()[0].Tools)
}

func TestRun_StepBudgetExhausted(t *testing.T) {
	llm := llmFunc(func(context.Context, GenerateInput) (*Completion, error) {
		return &Completion{Content: "still thinking"}, nil
	})

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.NewTerminateTool()))
	cfg := config.Defaults().Agent
	cfg.BaseSteps = 2
	cfg.StepCeiling = 2
	loop := NewLoop(llm, tools.NewDispatcher(reg, 0, 0), cfg, NewCancelRegistry())

	store := timeline.New("conv-1")
	res, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "ponder forever",
		Timeline:       store,
		AllowTools:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StopBudget, res.Stop)
	// Partial last response survives.
	assert.Equal(t, "still thinking", res.Content)

	errs := store.GetEvents(timeline.EventFilter{Type: models.EventTypeAgentError})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Description, "budget")
}

func TestRun_CancellationBetweenIterations(t *testing.T) {
	var loop *Loop
	var cancels *CancelRegistry
	llm := llmFunc(func(context.Context, GenerateInput) (*Completion, error) {
		// Cancellation lands while an iteration is in flight; the loop
		// notices at the top of the next one.
		cancels.Cancel("conv-1")
		return &Completion{Content: "mid-flight answer"}, nil
	})
	loop, cancels = newTestLoop(t, llm)

	store := timeline.New("conv-1")
	res, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "long task",
		Timeline:       store,
		AllowTools:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, res.Stop)
	assert.Equal(t, "mid-flight answer", res.Content)

	errs := store.GetEvents(timeline.EventFilter{Type: models.EventTypeAgentError})
	require.Len(t, errs, 1)
	assert.Equal(t, string(StopCancelled), errs[0].Title)
}

func TestRun_RequiredInputGate(t *testing.T) {
	llm := NewScriptedLLMClient() // must never be called
	loop, _ := newTestLoop(t, llm)
	store := timeline.New("conv-1")

	res, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "please order for me",
		Timeline:       store,
		AllowTools:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StopGated, res.Stop)
	assert.Contains(t, res.Content, "order")
	assert.Empty(t, llm.Calls())

	responses := store.GetEvents(timeline.EventFilter{Type: models.EventTypeAgentResponse})
	assert.Len(t, responses, 1)
}

func TestRun_ToolErrorFlowsIntoHistory(t *testing.T) {
	llm := NewScriptedLLMClient(
		Completion{ToolCalls: []ToolCall{{Name: "nope", Args: nil}}},
		Completion{ToolCalls: []ToolCall{{
			Name: tools.TerminateName,
			Args: map[string]any{"status": "failure", "message": "Could not do it."},
		}}},
	)
	loop, _ := newTestLoop(t, llm)
	store := timeline.New("conv-1")

	res, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "use a tool that does not exist",
		Timeline:       store,
		AllowTools:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StopTerminated, res.Stop)

	found := false
	for _, m := range res.History {
		if m.Role == models.RoleTool && m.Content == "tool nope invalid" {
			found = true
		}
	}
	assert.True(t, found, "dispatcher error should be a tool-role message")
}

func TestRun_LLMErrorSurfaces(t *testing.T) {
	llm := NewScriptedLLMClient() // exhausted immediately
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.NewTerminateTool()))
	loop := NewLoop(llm, tools.NewDispatcher(reg, 0, 0), config.Defaults().Agent, NewCancelRegistry())

	store := timeline.New("conv-1")
	_, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Prompt:         "hello there agent",
		Timeline:       store,
		AllowTools:     true,
	})
	require.Error(t, err)

	starts := store.GetEvents(timeline.EventFilter{Type: models.EventTypeAgentStart})
	require.Len(t, starts, 1)
	assert.Equal(t, models.StatusError, starts[0].Status)
}
