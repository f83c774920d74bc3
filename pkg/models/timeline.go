package models

import "time"

// EventType enumerates the closed set of timeline event types.
type EventType string

// Timeline event types.
const (
	EventTypeAgentStart    EventType = "agent_start"
	EventTypeAgentStop     EventType = "agent_stop"
	EventTypeAgentError    EventType = "agent_error"
	EventTypeAgentThinking EventType = "agent_thinking"
	EventTypeAgentResponse EventType = "agent_response"
	EventTypeUserInput     EventType = "user_input"
	EventTypeToolCall      EventType = "tool_call"
	EventTypeToolResult    EventType = "tool_result"
	EventTypePlanCreated   EventType = "plan_created"
	EventTypePlanUpdated   EventType = "plan_updated"
	EventTypeTaskStarted   EventType = "task_started"
	EventTypeTaskCompleted EventType = "task_completed"
	EventTypeTaskFailed    EventType = "task_failed"
	EventTypeCodeExecution EventType = "code_execution"
	EventTypeWebBrowse     EventType = "web_browse"
	EventTypeFileOperation EventType = "file_operation"
	EventTypeSystem        EventType = "system"
	EventTypeError         EventType = "error"
)

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeAgentStart, EventTypeAgentStop, EventTypeAgentError,
		EventTypeAgentThinking, EventTypeAgentResponse, EventTypeUserInput,
		EventTypeToolCall, EventTypeToolResult, EventTypePlanCreated,
		EventTypePlanUpdated, EventTypeTaskStarted, EventTypeTaskCompleted,
		EventTypeTaskFailed, EventTypeCodeExecution, EventTypeWebBrowse,
		EventTypeFileOperation, EventTypeSystem, EventTypeError:
		return true
	}
	return false
}

// EventStatus is the lifecycle status of a timeline event.
type EventStatus string

// Event statuses.
const (
	StatusStarted EventStatus = "started"
	StatusSuccess EventStatus = "success"
	StatusError   EventStatus = "error"
	StatusUnset   EventStatus = "unset"
)

// TimelineEvent is one entry in a timeline. Children convey causality:
// a tool_call is a child of the agent_thinking that requested it.
type TimelineEvent struct {
	EventID     string           `json:"event_id"`
	Type        EventType        `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Timestamp   time.Time        `json:"timestamp"`
	ParentID    string           `json:"parent_id,omitempty"`
	Children    []*TimelineEvent `json:"children"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Status      EventStatus      `json:"status"`
	DurationS   *float64         `json:"duration_s,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
}

// Timeline is the ordered event log attached to one conversation turn.
type Timeline struct {
	TimelineID     string           `json:"timeline_id"`
	ConversationID string           `json:"conversation_id"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Events         []*TimelineEvent `json:"events"`
	EventCount     int              `json:"event_count"`
}

// EmptyTimeline returns a timeline with no events for the given conversation.
func EmptyTimeline(conversationID string) *Timeline {
	now := time.Now().UTC()
	return &Timeline{
		TimelineID:     "",
		ConversationID: conversationID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Events:         []*TimelineEvent{},
		EventCount:     0,
	}
}
