package agent

import "sync"

// CancelRegistry carries cancellation flags from the API surface to
// running loops. The loop polls at the top of each iteration; an in-flight
// tool call finishes or times out on its own.
type CancelRegistry struct {
	mu      sync.Mutex
	running map[string]bool
	flags   map[string]bool
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		running: make(map[string]bool),
		flags:   make(map[string]bool),
	}
}

// Begin marks the conversation's loop as running and clears any stale flag.
func (r *CancelRegistry) Begin(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[conversationID] = true
	delete(r.flags, conversationID)
}

// End marks the loop finished.
func (r *CancelRegistry) End(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, conversationID)
}

// Cancel requests cancellation. Returns false when no loop is running for
// the conversation.
func (r *CancelRegistry) Cancel(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running[conversationID] {
		return false
	}
	r.flags[conversationID] = true
	return true
}

// Cancelled reports whether cancellation was requested.
func (r *CancelRegistry) Cancelled(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[conversationID]
}
