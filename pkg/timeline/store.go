// Package timeline implements the append-only, hierarchical event log
// attached to one conversation turn.
//
// The store is an arena: events live in a flat slice, parent/child links are
// indices, and the exported tree shape is materialized only on Snapshot.
// Creation order enforces the tree shape — a parent must already exist when a
// child is appended, so cycles are impossible by construction.
//
// The store is NOT safe for concurrent mutation. Each conversation turn has a
// single owner goroutine that appends and closes events; everything else
// consumes immutable snapshots.
package timeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexagent/nexagent/pkg/models"
)

// descriptionLimit caps the stored description to keep wire payloads bounded.
// The untruncated text is preserved in metadata under "full_content".
const descriptionLimit = 100

// event is the arena representation of a single timeline event.
type event struct {
	id        string
	eventType models.EventType
	title     string
	desc      string
	timestamp time.Time
	started   time.Time // monotonic reading for duration computation
	parent    int       // arena index, -1 for roots
	children  []int
	metadata  map[string]any
	status    models.EventStatus
	duration  *float64
	tags      []string
	closed    bool
}

// Store is the timeline for one conversation turn.
type Store struct {
	timelineID     string
	conversationID string
	createdAt      time.Time
	updatedAt      time.Time
	events         []*event
	index          map[string]int
	roots          []int
}

// New creates an empty timeline store for a conversation.
func New(conversationID string) *Store {
	now := time.Now()
	return &Store{
		timelineID:     uuid.New().String(),
		conversationID: conversationID,
		createdAt:      now,
		updatedAt:      now,
		index:          make(map[string]int),
	}
}

// ID returns the timeline id.
func (s *Store) ID() string { return s.timelineID }

// ConversationID returns the owning conversation id.
func (s *Store) ConversationID() string { return s.conversationID }

// AddEventRequest carries the fields for appending an event.
type AddEventRequest struct {
	Type        models.EventType
	Title       string
	Description string
	ParentID    string // empty for a root event
	Metadata    map[string]any
	Tags        []string
}

// terminalOnCreate reports whether an event type is complete the moment it is
// recorded — nothing will close it later.
func terminalOnCreate(t models.EventType) bool {
	switch t {
	case models.EventTypeUserInput, models.EventTypeAgentResponse,
		models.EventTypeAgentStop, models.EventTypePlanCreated,
		models.EventTypePlanUpdated, models.EventTypeToolResult,
		models.EventTypeSystem, models.EventTypeError,
		models.EventTypeAgentError:
		return true
	}
	return false
}

// AddEvent appends an event and returns its id. Unknown parent ids are
// treated as roots rather than rejected — a missing parent must never lose
// the event itself.
func (s *Store) AddEvent(req AddEventRequest) string {
	now := time.Now()
	e := &event{
		id:        uuid.New().String(),
		eventType: req.Type,
		title:     req.Title,
		timestamp: now,
		started:   now,
		parent:    -1,
		metadata:  req.Metadata,
		status:    models.StatusStarted,
		tags:      req.Tags,
	}

	e.desc = req.Description
	if len(req.Description) > descriptionLimit {
		e.desc = req.Description[:descriptionLimit]
		if e.metadata == nil {
			e.metadata = make(map[string]any)
		}
		e.metadata["full_content"] = req.Description
	}

	if terminalOnCreate(req.Type) {
		e.status = models.StatusSuccess
		if req.Type == models.EventTypeError || req.Type == models.EventTypeAgentError || req.Type == models.EventTypeTaskFailed {
			e.status = models.StatusError
		}
		e.closed = true
		zero := 0.0
		e.duration = &zero
	}

	idx := len(s.events)
	if req.ParentID != "" {
		if p, ok := s.index[req.ParentID]; ok {
			e.parent = p
			s.events[p].children = append(s.events[p].children, idx)
		}
	}
	if e.parent == -1 {
		s.roots = append(s.roots, idx)
	}

	s.events = append(s.events, e)
	s.index[e.id] = idx
	s.touch(now)
	return e.id
}

// CloseEvent marks an event terminal and records its duration. Closing an
// already-closed event is a no-op; duration is never altered after the first
// close.
func (s *Store) CloseEvent(eventID string, status models.EventStatus, resultMetadata map[string]any) bool {
	idx, ok := s.index[eventID]
	if !ok {
		return false
	}
	e := s.events[idx]
	if e.closed {
		return false
	}

	e.closed = true
	e.status = status
	d := time.Since(e.started).Seconds()
	if d < 0 {
		d = 0
	}
	e.duration = &d

	for k, v := range resultMetadata {
		if e.metadata == nil {
			e.metadata = make(map[string]any)
		}
		e.metadata[k] = v
	}
	if status == models.StatusError {
		if e.metadata == nil {
			e.metadata = make(map[string]any)
		}
		if _, ok := e.metadata["error"]; !ok {
			if msg, ok := resultMetadata["error"]; ok {
				e.metadata["error"] = msg
			}
		}
	}

	s.touch(time.Now())
	return true
}

// EventFilter selects events for GetEvents. Zero values match everything.
type EventFilter struct {
	Type  models.EventType
	Tag   string
	Since time.Time
	Until time.Time
}

// GetEvents returns the events matching the filter, each with its full
// subtree materialized.
func (s *Store) GetEvents(f EventFilter) []*models.TimelineEvent {
	var out []*models.TimelineEvent
	for i, e := range s.events {
		if !s.matches(e, f) {
			continue
		}
		out = append(out, s.materialize(i))
	}
	return out
}

func (s *Store) matches(e *event, f EventFilter) bool {
	if f.Type != "" && e.eventType != f.Type {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range e.tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && e.timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.timestamp.After(f.Until) {
		return false
	}
	return true
}

// EventCount returns the total number of events in the store.
func (s *Store) EventCount() int { return len(s.events) }

// UpdatedAt returns the max event timestamp (or creation time when empty).
func (s *Store) UpdatedAt() time.Time { return s.updatedAt }

// Snapshot materializes the timeline as an immutable model for broadcast and
// HTTP responses.
func (s *Store) Snapshot() *models.Timeline {
	events := make([]*models.TimelineEvent, 0, len(s.roots))
	for _, idx := range s.roots {
		events = append(events, s.materialize(idx))
	}
	return &models.Timeline{
		TimelineID:     s.timelineID,
		ConversationID: s.conversationID,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
		Events:         events,
		EventCount:     len(s.events),
	}
}

func (s *Store) materialize(idx int) *models.TimelineEvent {
	e := s.events[idx]
	out := &models.TimelineEvent{
		EventID:     e.id,
		Type:        e.eventType,
		Title:       e.title,
		Description: e.desc,
		Timestamp:   e.timestamp,
		Status:      e.status,
		DurationS:   e.duration,
		Tags:        e.tags,
		Children:    make([]*models.TimelineEvent, 0, len(e.children)),
	}
	if e.parent >= 0 {
		out.ParentID = s.events[e.parent].id
	}
	if len(e.metadata) > 0 {
		out.Metadata = make(map[string]any, len(e.metadata))
		for k, v := range e.metadata {
			out.Metadata[k] = v
		}
	}
	for _, c := range e.children {
		out.Children = append(out.Children, s.materialize(c))
	}
	return out
}

func (s *Store) touch(t time.Time) {
	if t.After(s.updatedAt) {
		s.updatedAt = t
	}
}
