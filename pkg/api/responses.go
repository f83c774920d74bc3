package api

import (
	"github.com/nexagent/nexagent/pkg/browser"
	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/tools"
)

// RootResponse answers GET /.
type RootResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HealthResponse answers GET /api/health. Client carries the browse
// pipeline's per-method telemetry and is omitted when no pipeline runs.
type HealthResponse struct {
	Status        string                         `json:"status"`
	Server        string                         `json:"server"`
	Version       string                         `json:"version"`
	TimestampMS   int64                          `json:"timestamp_ms"`
	Connections   int                            `json:"connections"`
	Conversations int                            `json:"conversations"`
	Client        map[string]browser.MethodStats `json:"client,omitempty"`
}

// RateLimitedResponse is the 429 body for the health endpoint.
type RateLimitedResponse struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
}

// MessageResponse answers POST /api/message.
type MessageResponse struct {
	ID             string           `json:"id"`
	Content        string           `json:"content"`
	ConversationID string           `json:"conversation_id"`
	TimestampMS    int64            `json:"timestamp_ms"`
	Created        bool             `json:"created"`
	Mode           string           `json:"mode"`
	Timeline       *models.Timeline `json:"timeline"`
}

// ConversationListResponse answers GET /api/conversations.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
	Count         int                   `json:"count"`
}

// CancelResponse answers POST /api/conversations/:id/cancel.
type CancelResponse struct {
	ConversationID string `json:"conversation_id"`
	Cancelled      bool   `json:"cancelled"`
	Message        string `json:"message"`
}

// ToolListResponse answers GET /api/tools.
type ToolListResponse struct {
	Tools []tools.Definition `json:"tools"`
	Count int                `json:"count"`
}
