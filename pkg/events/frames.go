// Package events delivers timeline updates to WebSocket subscribers.
// One conversation has at most one live subscriber; registering a new one
// supersedes the old.
package events

import (
	"time"

	"github.com/nexagent/nexagent/pkg/models"
)

// Wire frame types.
const (
	FrameConnectionEstablished = "connection_established"
	FrameTimelineUpdate        = "timeline_update"
	FramePing                  = "ping"
	FramePong                  = "pong"
	FrameAck                   = "ack"
)

// ConnectionEstablishedFrame is sent once, immediately after registration.
type ConnectionEstablishedFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	TimestampMS    int64  `json:"timestamp_ms"`
}

// TimelineUpdateFrame carries a full timeline snapshot.
type TimelineUpdateFrame struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Timeline       *models.Timeline `json:"timeline"`
}

// PingFrame is a server-initiated liveness probe.
type PingFrame struct {
	Type        string `json:"type"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// PongFrame answers a client ping.
type PongFrame struct {
	Type        string `json:"type"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// AckFrame echoes an unrecognized client message.
type AckFrame struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
}

func nowMS() int64 { return time.Now().UnixMilli() }

func newConnectionEstablished(conversationID string) *ConnectionEstablishedFrame {
	return &ConnectionEstablishedFrame{
		Type:           FrameConnectionEstablished,
		ConversationID: conversationID,
		TimestampMS:    nowMS(),
	}
}

func newTimelineUpdate(conversationID string, tl *models.Timeline) *TimelineUpdateFrame {
	return &TimelineUpdateFrame{
		Type:           FrameTimelineUpdate,
		ConversationID: conversationID,
		Timeline:       tl,
	}
}

func newPing() *PingFrame { return &PingFrame{Type: FramePing, TimestampMS: nowMS()} }

func newPong() *PongFrame { return &PongFrame{Type: FramePong, TimestampMS: nowMS()} }
