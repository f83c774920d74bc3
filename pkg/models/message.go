package models

// Role identifies the author of a conversation message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript.
// Messages within a conversation are strictly monotonic in TimestampMS.
type Message struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	TimestampMS int64  `json:"timestamp_ms"`
	TimelineRef string `json:"timeline_ref,omitempty"`
}
