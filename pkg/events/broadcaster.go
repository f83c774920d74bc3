package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexagent/nexagent/pkg/models"
)

// Default liveness parameters. Server pings go out when a subscriber has been
// silent for PingInterval; a subscriber that leaves MaxMissedAcks pings
// unanswered is dropped.
const (
	DefaultPingInterval  = 30 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultMaxMissedAcks = 2
)

// CloseReasonSuperseded is sent to a subscriber displaced by a newer
// connection for the same conversation.
const CloseReasonSuperseded = "superseded"

// Transport abstracts the underlying WebSocket connection so the broadcaster
// can be exercised with in-memory fakes.
type Transport interface {
	// Send writes one text frame. It must respect ctx for its deadline.
	Send(ctx context.Context, data []byte) error
	// Close closes the transport with a normal-closure code and a reason.
	Close(reason string) error
}

// Subscriber is one registered connection. All sends for a subscriber are
// serialized through sendMu so broadcast order matches event order.
type Subscriber struct {
	id             string
	conversationID string
	transport      Transport

	sendMu sync.Mutex

	mu           sync.Mutex
	lastSend     time.Time
	pendingPings int
	closed       bool
}

// ConversationID returns the conversation this subscriber is bound to.
func (s *Subscriber) ConversationID() string { return s.conversationID }

// Broadcaster owns the subscriber table and pushes timeline deltas.
// Table operations are O(1) and never perform I/O under the lock; sends
// happen after release so a slow consumer can never block a producer.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]*Subscriber

	writeTimeout  time.Duration
	pingInterval  time.Duration
	maxMissedAcks int
}

// NewBroadcaster creates a broadcaster with default liveness parameters.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:          make(map[string]*Subscriber),
		writeTimeout:  DefaultWriteTimeout,
		pingInterval:  DefaultPingInterval,
		maxMissedAcks: DefaultMaxMissedAcks,
	}
}

// SetPingInterval overrides the ping interval (used by tests).
func (b *Broadcaster) SetPingInterval(d time.Duration) { b.pingInterval = d }

// Count returns the number of live subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Register installs t as the single subscriber for conversationID. A prior
// subscriber is closed first (normal closure, reason "superseded"). The new
// subscriber receives connection_established followed by the current
// timeline snapshot, which may be empty.
func (b *Broadcaster) Register(ctx context.Context, conversationID string, t Transport, snapshot *models.Timeline) *Subscriber {
	sub := &Subscriber{
		conversationID: conversationID,
		transport:      t,
		lastSend:       time.Now(),
	}

	b.mu.Lock()
	sub.id = uuid.New().String()
	prev := b.subs[conversationID]
	b.subs[conversationID] = sub
	b.mu.Unlock()

	if prev != nil {
		prev.markClosed()
		if err := prev.transport.Close(CloseReasonSuperseded); err != nil {
			slog.Debug("Failed to close superseded subscriber",
				"conversation_id", conversationID, "error", err)
		}
	}

	if err := b.send(ctx, sub, newConnectionEstablished(conversationID)); err != nil {
		b.drop(sub, "send connection_established failed")
		return sub
	}
	if snapshot == nil {
		snapshot = models.EmptyTimeline(conversationID)
	}
	if err := b.send(ctx, sub, newTimelineUpdate(conversationID, snapshot)); err != nil {
		b.drop(sub, "send initial timeline failed")
	}
	return sub
}

// Broadcast sends a timeline snapshot to the conversation's subscriber, if
// any. A failed send deregisters the subscriber; the error never propagates
// to the event producer.
func (b *Broadcaster) Broadcast(ctx context.Context, conversationID string, tl *models.Timeline) {
	b.mu.Lock()
	sub := b.subs[conversationID]
	b.mu.Unlock()
	if sub == nil {
		return
	}

	if err := b.send(ctx, sub, newTimelineUpdate(conversationID, tl)); err != nil {
		slog.Debug("Broadcast send failed, dropping subscriber",
			"conversation_id", conversationID, "error", err)
		b.drop(sub, "broadcast send failed")
	}
}

// RecordAck resets the missed-ack counter for the conversation's subscriber.
// Called whenever any client message arrives on the connection.
func (b *Broadcaster) RecordAck(conversationID string) {
	b.mu.Lock()
	sub := b.subs[conversationID]
	b.mu.Unlock()
	if sub == nil {
		return
	}
	sub.mu.Lock()
	sub.pendingPings = 0
	sub.mu.Unlock()
}

// SendPong answers a client ping on the conversation's subscriber.
func (b *Broadcaster) SendPong(ctx context.Context, conversationID string) {
	b.mu.Lock()
	sub := b.subs[conversationID]
	b.mu.Unlock()
	if sub == nil {
		return
	}
	if err := b.send(ctx, sub, newPong()); err != nil {
		b.drop(sub, "pong send failed")
	}
}

// SendAck echoes an unrecognized client message.
func (b *Broadcaster) SendAck(ctx context.Context, conversationID string, message any) {
	b.mu.Lock()
	sub := b.subs[conversationID]
	b.mu.Unlock()
	if sub == nil {
		return
	}
	if err := b.send(ctx, sub, &AckFrame{Type: FrameAck, Message: message}); err != nil {
		b.drop(sub, "ack send failed")
	}
}

// Deregister removes sub if it is still the current subscriber for its
// conversation. Used by the connection read loop on close.
func (b *Broadcaster) Deregister(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if cur := b.subs[sub.conversationID]; cur == sub {
		delete(b.subs, sub.conversationID)
	}
	b.mu.Unlock()
	sub.markClosed()
}

// Run drives periodic liveness ticks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	interval := b.pingInterval / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case now := <-ticker.C:
			b.Tick(ctx, now)
		}
	}
}

// Tick sends pings to idle subscribers and drops the unresponsive ones.
func (b *Broadcaster) Tick(ctx context.Context, now time.Time) {
	var toPing, toDrop []*Subscriber

	b.mu.Lock()
	for _, sub := range b.subs {
		sub.mu.Lock()
		switch {
		case sub.pendingPings >= b.maxMissedAcks:
			toDrop = append(toDrop, sub)
		case now.Sub(sub.lastSend) > b.pingInterval:
			toPing = append(toPing, sub)
		}
		sub.mu.Unlock()
	}
	b.mu.Unlock()

	for _, sub := range toDrop {
		slog.Info("Dropping unresponsive subscriber",
			"conversation_id", sub.conversationID, "missed_acks", b.maxMissedAcks)
		b.drop(sub, "missed acknowledgements")
	}
	for _, sub := range toPing {
		sub.mu.Lock()
		sub.pendingPings++
		sub.mu.Unlock()
		if err := b.send(ctx, sub, newPing()); err != nil {
			b.drop(sub, "ping send failed")
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, sub *Subscriber, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return context.Canceled
	}
	sub.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()

	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if err := sub.transport.Send(sendCtx, data); err != nil {
		return err
	}
	sub.mu.Lock()
	sub.lastSend = time.Now()
	sub.mu.Unlock()
	return nil
}

func (b *Broadcaster) drop(sub *Subscriber, reason string) {
	b.Deregister(sub)
	if err := sub.transport.Close(reason); err != nil {
		slog.Debug("Failed to close dropped subscriber",
			"conversation_id", sub.conversationID, "error", err)
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.markClosed()
		_ = s.transport.Close("server shutting down")
	}
}

func (s *Subscriber) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
