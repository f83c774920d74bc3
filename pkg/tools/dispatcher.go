package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/timeline"
)

// Dispatch timeouts. Heavy tools (model-load paths) get the longer budget.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultHeavyTimeout = 60 * time.Second
)

// DispatchOptions tunes a single dispatch.
type DispatchOptions struct {
	// CheckDeps runs transitive dependency validation before execution.
	CheckDeps bool
	// Timeout overrides the per-call timeout; zero selects the default for
	// the tool (30 s, 60 s when the tool is flagged heavy).
	Timeout time.Duration
}

// Dispatcher invokes tools, normalizes result/error envelopes, and applies
// per-call timeouts. Every dispatch opens a tool_call timeline event on entry
// and closes it with the result on exit.
type Dispatcher struct {
	registry     *Registry
	timeout      time.Duration
	heavyTimeout time.Duration
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, timeout, heavyTimeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if heavyTimeout <= 0 {
		heavyTimeout = DefaultHeavyTimeout
	}
	return &Dispatcher{registry: registry, timeout: timeout, heavyTimeout: heavyTimeout}
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs the named tool. Expected failures (unknown tool, missing
// dependencies, argument violations, timeout, tool errors, panics) are all
// returned inside the Result envelope; the error return is reserved for a
// nil dispatcher misuse and always nil in practice.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *Invocation, name string, args map[string]any, opts DispatchOptions) *Result {
	tool := d.registry.Get(name)
	if tool == nil {
		return Fail("tool %s invalid", name)
	}
	def, _ := d.registry.definitionFor(name)

	if opts.CheckDeps {
		if ok, missing := d.registry.ValidateDependencies(name); !ok {
			return Fail("missing dependencies: %s", strings.Join(missing, ", "))
		}
	}

	if err := validateArgs(d.registry.schemaFor(name), args); err != nil {
		return Fail("invalid arguments for %s: %v", name, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
		if def.Heavy {
			timeout = d.heavyTimeout
		}
	}

	eventID := ""
	if inv != nil && inv.Timeline != nil {
		eventID = inv.Timeline.AddEvent(timeline.AddEventRequest{
			Type:        models.EventTypeToolCall,
			Title:       name,
			Description: fmt.Sprintf("Calling tool %s", name),
			ParentID:    inv.ParentEventID,
			Metadata:    map[string]any{"args": args},
		})
	}

	result := d.run(ctx, inv, tool, name, args, timeout)

	if eventID != "" {
		status := models.StatusSuccess
		meta := map[string]any{"output": result.Output}
		if result.IsError() {
			status = models.StatusError
			meta = map[string]any{"error": result.Error}
		}
		inv.Timeline.CloseEvent(eventID, status, meta)
	}
	return result
}

// run executes the tool body under a timeout, converting panics and expired
// deadlines into error envelopes. The tool goroutine is not force-killed on
// timeout; it finishes (or leaks its wait) in the background while the
// caller proceeds.
func (d *Dispatcher) run(ctx context.Context, inv *Invocation, tool Tool, name string, args map[string]any, timeout time.Duration) *Result {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Tool panicked", "tool", name, "panic", r,
					"stack", string(debug.Stack()))
				ch <- outcome{result: Fail("tool %s panicked: %v", name, r)}
			}
		}()
		res, err := tool.Execute(runCtx, inv, args)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			return &Result{Error: fmt.Sprintf("tool %s timed out after %s", name, timeout)}
		}
		return Fail("tool %s cancelled", name)
	case out := <-ch:
		return normalize(name, out.result, out.err)
	}
}

// normalize enforces the envelope invariant: exactly one of output/error set.
func normalize(name string, res *Result, err error) *Result {
	if err != nil {
		return Fail("tool %s failed: %v", name, err)
	}
	if res == nil {
		return Fail("tool %s returned no result", name)
	}
	if res.Error != "" {
		return &Result{Error: res.Error}
	}
	if res.Output == "" {
		return Fail("tool %s returned an empty result", name)
	}
	return &Result{Output: res.Output}
}
