package api

// MessageRequest is the body of POST /api/message.
type MessageRequest struct {
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id"`
	ProcessingMode string `json:"processing_mode"`

	// Accepted for wire compatibility with older clients; the server picks
	// system prompts and sampling parameters by processing mode.
	SystemPrompt string         `json:"system_prompt"`
	Parameters   map[string]any `json:"parameters"`
}

// ExportRequest is the body of POST /api/conversations/:id/export. An empty
// format defaults to markdown.
type ExportRequest struct {
	Format string `json:"format"`
}
