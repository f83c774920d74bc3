package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexagent/nexagent/pkg/config"
	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/timeline"
	"github.com/nexagent/nexagent/pkg/tools"
)

// StopReason says how a run ended.
type StopReason string

const (
	StopCompleted  StopReason = "completed"
	StopTerminated StopReason = "terminated"
	StopCancelled  StopReason = "cancelled"
	StopBudget     StopReason = "budget_exhausted"
	StopGated      StopReason = "needs_input"
)

// RunInput is one agent run request.
type RunInput struct {
	ConversationID string
	Prompt         string
	History        []HistoryMessage
	Timeline       *timeline.Store
	SystemPrompt   string
	// AllowTools gates tool use; the chat-mode loop runs with it off and
	// treats the first plain response as final.
	AllowTools bool
}

// RunResult is the outcome of a run.
type RunResult struct {
	// Content is the user-facing response after final formatting.
	Content string
	// FullContent is the unredacted assistant message.
	FullContent string
	Steps       int
	Stop        StopReason
	History     []HistoryMessage
}

// Loop owns the think-act cycle.
type Loop struct {
	llm        LLMClient
	dispatcher *tools.Dispatcher
	cfg        config.AgentConfig
	cancels    *CancelRegistry
}

func NewLoop(llm LLMClient, dispatcher *tools.Dispatcher, cfg config.AgentConfig, cancels *CancelRegistry) *Loop {
	return &Loop{llm: llm, dispatcher: dispatcher, cfg: cfg, cancels: cancels}
}

// Run drives iterations until the model terminates, the budget runs out,
// or the run is cancelled. Every timeline event opened here is closed on
// every exit path.
func (l *Loop) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if in.AllowTools {
		if question, gated := CheckRequiredInput(l.cfg, in.Prompt); gated {
			in.Timeline.AddEvent(timeline.AddEventRequest{
				Type:        models.EventTypeAgentResponse,
				Title:       "Requesting missing input",
				Description: question,
			})
			return &RunResult{
				Content: question, FullContent: question,
				Stop: StopGated, History: in.History,
			}, nil
		}
	}

	maxSteps := StepBudget(l.cfg, in.Prompt)
	startID := in.Timeline.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeAgentStart,
		Title:       "Agent run started",
		Description: in.Prompt,
		Metadata:    map[string]any{"max_steps": maxSteps, "tools_enabled": in.AllowTools},
	})

	l.cancels.Begin(in.ConversationID)
	defer l.cancels.End(in.ConversationID)

	history := append([]HistoryMessage{}, in.History...)
	history = append(history, HistoryMessage{Role: models.RoleUser, Content: in.Prompt})

	lastContent := ""
	step := 0
	for {
		if l.cancels.Cancelled(in.ConversationID) || ctx.Err() != nil {
			return l.stop(in, startID, history, lastContent, step, StopCancelled, "Run cancelled"), nil
		}
		if step >= maxSteps {
			return l.stop(in, startID, history, lastContent, step, StopBudget,
				fmt.Sprintf("Step budget exhausted after %d steps", step)), nil
		}

		completion, err := l.think(ctx, in, history)
		if err != nil {
			in.Timeline.AddEvent(timeline.AddEventRequest{
				Type:        models.EventTypeAgentError,
				Title:       "Model call failed",
				Description: err.Error(),
				ParentID:    startID,
			})
			in.Timeline.CloseEvent(startID, models.StatusError, map[string]any{"error": err.Error()})
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		if completion.Content != "" {
			history = append(history, HistoryMessage{Role: models.RoleAssistant, Content: completion.Content})
			lastContent = completion.Content
			in.Timeline.AddEvent(timeline.AddEventRequest{
				Type:        models.EventTypeAgentResponse,
				Title:       "Assistant response",
				Description: completion.Content,
				ParentID:    startID,
				Metadata:    map[string]any{"full_content": completion.Content},
			})
		}

		if len(completion.ToolCalls) == 0 {
			if !in.AllowTools {
				// Chat mode has no terminate sentinel; the first plain
				// answer is the answer.
				in.Timeline.CloseEvent(startID, models.StatusSuccess, nil)
				return &RunResult{
					Content:     FormatFinal(lastContent),
					FullContent: lastContent,
					Steps:       step + 1,
					Stop:        StopCompleted,
					History:     history,
				}, nil
			}
			step++
			continue
		}

		terminated := false
		for _, call := range completion.ToolCalls {
			result := l.dispatcher.Dispatch(ctx, &tools.Invocation{
				ConversationID: in.ConversationID,
				Timeline:       in.Timeline,
				Registry:       l.dispatcher.Registry(),
				ParentEventID:  startID,
			}, call.Name, call.Args, tools.DispatchOptions{CheckDeps: true})

			history = append(history, HistoryMessage{
				Role:     models.RoleTool,
				Content:  result.Content(),
				ToolName: call.Name,
			})

			if call.Name == tools.TerminateName && !result.IsError() {
				lastContent = result.Output
				terminated = true
				break
			}
		}
		if terminated {
			return l.finish(in, startID, history, lastContent, step+1), nil
		}
		step++
	}
}

// think runs one bounded model call under an agent_thinking event.
func (l *Loop) think(ctx context.Context, in RunInput, history []HistoryMessage) (*Completion, error) {
	thinkID := in.Timeline.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeAgentThinking,
		Title:       "Thinking",
		Description: fmt.Sprintf("Model turn %d", len(history)),
	})

	var defs []tools.Definition
	if in.AllowTools {
		defs = l.dispatcher.Registry().Definitions()
	}

	timeout := l.cfg.LLMTimeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	completion, err := l.llm.Generate(callCtx, GenerateInput{
		SystemPrompt: in.SystemPrompt,
		Messages:     history,
		Tools:        defs,
	})
	if err != nil {
		in.Timeline.CloseEvent(thinkID, models.StatusError, map[string]any{"error": err.Error()})
		return nil, err
	}

	slog.Debug("Model turn complete",
		"conversation_id", in.ConversationID,
		"duration", time.Since(start),
		"tool_calls", len(completion.ToolCalls))
	in.Timeline.CloseEvent(thinkID, models.StatusSuccess, map[string]any{
		"content":    completion.Content,
		"tool_calls": len(completion.ToolCalls),
	})
	return completion, nil
}

// stop records an abnormal end (cancellation, exhausted budget) and returns
// the best partial response.
func (l *Loop) stop(in RunInput, startID string, history []HistoryMessage, lastContent string, steps int, reason StopReason, detail string) *RunResult {
	in.Timeline.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeAgentError,
		Title:       string(reason),
		Description: detail,
		ParentID:    startID,
	})
	in.Timeline.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeAgentStop,
		Title:       "Agent run stopped",
		Description: detail,
		ParentID:    startID,
	})
	in.Timeline.CloseEvent(startID, models.StatusError, map[string]any{"reason": string(reason)})

	content := lastContent
	if content == "" {
		content = detail + "."
	}
	return &RunResult{
		Content:     FormatFinal(content),
		FullContent: content,
		Steps:       steps,
		Stop:        reason,
		History:     history,
	}
}

// finish records a terminate-driven completion.
func (l *Loop) finish(in RunInput, startID string, history []HistoryMessage, content string, steps int) *RunResult {
	in.Timeline.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeAgentStop,
		Title:       "Agent run completed",
		Description: "Model signalled completion",
		ParentID:    startID,
	})
	in.Timeline.CloseEvent(startID, models.StatusSuccess, map[string]any{"steps": steps})
	return &RunResult{
		Content:     FormatFinal(content),
		FullContent: content,
		Steps:       steps,
		Stop:        StopTerminated,
		History:     history,
	}
}
