package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nexagent/nexagent/pkg/browser"
	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/timeline"
)

// Browser tool names.
const (
	BrowseName  = "browse_url"
	CollectName = "collect_info"
)

// BrowseTool fetches one page through the hardened pipeline.
type BrowseTool struct {
	pipeline *browser.Pipeline
}

func NewBrowseTool(p *browser.Pipeline) *BrowseTool {
	return &BrowseTool{pipeline: p}
}

// Definition implements Tool.
func (t *BrowseTool) Definition() Definition {
	return Definition{
		Name:        BrowseName,
		Description: "Fetch a web page and return its readable text. Handles blocked or protected pages automatically.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "Absolute URL to fetch"}
			},
			"required": ["url"]
		}`),
		Heavy: true,
	}
}

// Execute implements Tool.
func (t *BrowseTool) Execute(ctx context.Context, inv *Invocation, args map[string]any) (*Result, error) {
	target, _ := args["url"].(string)
	if strings.TrimSpace(target) == "" {
		return Fail("url must not be empty"), nil
	}

	out, attempts, err := t.pipeline.Fetch(ctx, target)
	recordBrowse(inv, target, attempts, err)
	if err != nil {
		return Fail("%v", err), nil
	}
	return Ok(out), nil
}

// CollectTool drives agentic navigation starting at a URL to gather
// information about a query.
type CollectTool struct {
	pipeline *browser.Pipeline
}

func NewCollectTool(p *browser.Pipeline) *CollectTool {
	return &CollectTool{pipeline: p}
}

// Definition implements Tool.
func (t *CollectTool) Definition() Definition {
	return Definition{
		Name:        CollectName,
		Description: "Navigate a website starting from a URL and collect information relevant to a query, following links as needed.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "Starting URL"},
				"query": {"type": "string", "description": "What to collect information about"}
			},
			"required": ["url", "query"]
		}`),
		RequiredTools: []string{BrowseName},
		Heavy:         true,
	}
}

// Execute implements Tool.
func (t *CollectTool) Execute(ctx context.Context, inv *Invocation, args map[string]any) (*Result, error) {
	target, _ := args["url"].(string)
	query, _ := args["query"].(string)
	if strings.TrimSpace(target) == "" || strings.TrimSpace(query) == "" {
		return Fail("url and query must not be empty"), nil
	}

	out, attempts, err := t.pipeline.Collect(ctx, target, query)
	recordBrowse(inv, target, attempts, err)
	if err != nil {
		return Fail("%v", err), nil
	}
	return Ok(out), nil
}

// recordBrowse writes a web_browse event carrying the attempt trail, so
// the timeline shows which mitigation rung finally served the page.
func recordBrowse(inv *Invocation, target string, attempts []browser.Attempt, err error) {
	if inv == nil || inv.Timeline == nil {
		return
	}
	meta := map[string]any{
		"url":      target,
		"attempts": attempts,
	}
	title := "Browsed " + target
	if err != nil {
		meta["error"] = err.Error()
		title = "Failed to browse " + target
	}
	id := inv.Timeline.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeWebBrowse,
		Title:       title,
		Description: title,
		ParentID:    inv.ParentEventID,
		Metadata:    meta,
	})
	status := models.StatusSuccess
	if err != nil {
		status = models.StatusError
	}
	inv.Timeline.CloseEvent(id, status, nil)
}
