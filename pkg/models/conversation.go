package models

import "time"

// Conversation is the list-view projection of a conversation.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ConversationDetail is the full projection returned by the single-conversation endpoint.
type ConversationDetail struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaterialEntry records one artifact stored under a conversation's materials folder.
type MaterialEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SourceURL string    `json:"source_url,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// ConversationMetadata is the on-disk metadata.json schema.
type ConversationMetadata struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Materials    []MaterialEntry `json:"materials"`
	MessageCount int             `json:"message_count"`
}
