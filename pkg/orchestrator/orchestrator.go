// Package orchestrator routes incoming messages: conversation minting,
// chat/agent classification, direct responses, agent runs, persistence,
// and timeline broadcasting.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexagent/nexagent/pkg/agent"
	"github.com/nexagent/nexagent/pkg/classifier"
	"github.com/nexagent/nexagent/pkg/config"
	"github.com/nexagent/nexagent/pkg/conversation"
	"github.com/nexagent/nexagent/pkg/events"
	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/responder"
	"github.com/nexagent/nexagent/pkg/services"
	"github.com/nexagent/nexagent/pkg/timeline"
)

// Processing modes accepted on a message request.
const (
	ModeAuto  = "auto"
	ModeChat  = "chat"
	ModeAgent = "agent"
)

const agentSystemPrompt = `You are Nexagent, an autonomous assistant. Work the task step by step.
Use the available tools to gather information and act. When the task is
complete, call the terminate tool with the final status and your full answer.`

const chatSystemPrompt = `You are Nexagent, a helpful conversational assistant.
Answer the user directly and concisely. Do not use tools.`

// Result is the outcome of routing one message.
type Result struct {
	Message        models.Message   `json:"message"`
	ConversationID string           `json:"conversation_id"`
	Created        bool             `json:"created"`
	Mode           string           `json:"mode"`
	Timeline       *models.Timeline `json:"timeline"`
}

// Orchestrator wires the classifier, responder, agent loop, storage, and
// broadcaster behind one entry point. Message handling is serialized per
// conversation; different conversations proceed concurrently.
type Orchestrator struct {
	cfg        *config.Config
	manager    *conversation.Manager
	classifier *classifier.Classifier
	responder  *responder.Responder
	loop       *agent.Loop
	cancels    *agent.CancelRegistry
	broadcast  *events.Broadcaster
	pdf        conversation.PDFRenderer

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	timelines map[string]*timeline.Store
	lastStamp map[string]int64
}

func New(
	cfg *config.Config,
	manager *conversation.Manager,
	cls *classifier.Classifier,
	rsp *responder.Responder,
	loop *agent.Loop,
	cancels *agent.CancelRegistry,
	broadcast *events.Broadcaster,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		manager:    manager,
		classifier: cls,
		responder:  rsp,
		loop:       loop,
		cancels:    cancels,
		broadcast:  broadcast,
		locks:      make(map[string]*sync.Mutex),
		timelines:  make(map[string]*timeline.Store),
		lastStamp:  make(map[string]int64),
	}
}

// HandleMessage routes one user message end to end and returns the
// assistant reply with the current timeline snapshot.
func (o *Orchestrator) HandleMessage(ctx context.Context, content, conversationID, mode string) (*Result, error) {
	if mode == "" {
		mode = ModeAuto
	}
	if mode != ModeAuto && mode != ModeChat && mode != ModeAgent {
		return nil, services.NewValidationError("processing_mode",
			fmt.Sprintf("must be one of %s, %s, %s", ModeAuto, ModeChat, ModeAgent))
	}

	created := false
	if conversationID == "" || !o.manager.Exists(conversationID) {
		if conversationID == "" {
			conversationID = uuid.New().String()
		}
		if err := o.manager.Create(conversationID, conversation.TitleFromPrompt(content)); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		created = true
	}

	lock := o.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	store := o.timelineStore(conversationID)
	messages, err := o.manager.Messages(conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := o.newMessage(conversationID, models.RoleUser, content, store.ID())
	messages = append(messages, userMsg)
	store.AddEvent(timeline.AddEventRequest{
		Type:        models.EventTypeUserInput,
		Title:       "User message",
		Description: content,
	})

	resolved := mode
	if resolved == ModeAuto {
		cls := o.classifier.Classify(content)
		resolved = string(cls.Kind)
		slog.Debug("Classified message",
			"conversation_id", conversationID, "kind", cls.Kind,
			"chat_score", cls.ChatScore, "agent_score", cls.AgentScore)
	}

	reply, err := o.respond(ctx, conversationID, content, messages, resolved, store)
	if err != nil {
		store.AddEvent(timeline.AddEventRequest{
			Type:        models.EventTypeError,
			Title:       "Message handling failed",
			Description: err.Error(),
		})
		o.publish(ctx, conversationID, store)
		return nil, err
	}

	assistantMsg := o.newMessage(conversationID, models.RoleAssistant, reply, store.ID())
	messages = append(messages, assistantMsg)

	// Persistence and broadcasting are best-effort: the reply is already
	// computed and must reach the caller.
	if err := o.manager.SaveMessages(conversationID, messages); err != nil {
		slog.Error("Failed to persist conversation",
			"conversation_id", conversationID, "error", err)
	}
	snapshot := o.publish(ctx, conversationID, store)

	return &Result{
		Message:        assistantMsg,
		ConversationID: conversationID,
		Created:        created,
		Mode:           resolved,
		Timeline:       snapshot,
	}, nil
}

// respond produces the assistant reply for the resolved mode.
func (o *Orchestrator) respond(ctx context.Context, conversationID, content string, messages []models.Message, mode string, store *timeline.Store) (string, error) {
	if mode == ModeChat {
		if answer, ok := o.responder.TryAnswer(content); ok {
			store.AddEvent(timeline.AddEventRequest{
				Type:        models.EventTypeAgentResponse,
				Title:       "Direct response",
				Description: answer,
			})
			return answer, nil
		}
	}

	in := agent.RunInput{
		ConversationID: conversationID,
		Prompt:         content,
		History:        historyFromMessages(messages[:len(messages)-1]),
		Timeline:       store,
		SystemPrompt:   chatSystemPrompt,
		AllowTools:     false,
	}
	if mode == ModeAgent {
		in.SystemPrompt = agentSystemPrompt
		in.AllowTools = true
	}

	res, err := o.loop.Run(ctx, in)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Timeline returns the snapshot for a conversation. Ids carrying the
// client-side placeholder prefixes are minted on demand so a dashboard can
// subscribe before the first message lands.
func (o *Orchestrator) Timeline(conversationID string) (*models.Timeline, error) {
	o.mu.Lock()
	store, ok := o.timelines[conversationID]
	o.mu.Unlock()
	if ok {
		lock := o.conversationLock(conversationID)
		lock.Lock()
		defer lock.Unlock()
		return store.Snapshot(), nil
	}
	if isPlaceholderID(conversationID) {
		return models.EmptyTimeline(conversationID), nil
	}
	if !o.manager.Exists(conversationID) {
		return nil, services.ErrNotFound
	}
	return models.EmptyTimeline(conversationID), nil
}

// SetPDFRenderer installs the renderer used by Export. Nil keeps the
// markdown fallback for PDF requests.
func (o *Orchestrator) SetPDFRenderer(r conversation.PDFRenderer) { o.pdf = r }

// Export renders the conversation into outputs/ in the requested format.
// It takes the conversation lock so an in-flight run cannot mutate the
// transcript mid-render.
func (o *Orchestrator) Export(conversationID, format string) (*conversation.ExportResult, error) {
	lock := o.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()
	return o.manager.GenerateOutput(conversationID, format, o.pdf)
}

// Cancel requests cancellation of a running agent loop.
func (o *Orchestrator) Cancel(conversationID string) bool {
	ok := o.cancels.Cancel(conversationID)
	if ok {
		slog.Info("Cancellation requested", "conversation_id", conversationID)
	}
	return ok
}

// Conversations lists all stored conversations.
func (o *Orchestrator) Conversations() ([]models.Conversation, error) {
	return o.manager.List()
}

// Conversation returns the full detail projection.
func (o *Orchestrator) Conversation(conversationID string) (*models.ConversationDetail, error) {
	return o.manager.Detail(conversationID)
}

// ConversationCount reports how many conversations exist on disk.
func (o *Orchestrator) ConversationCount() int {
	list, err := o.manager.List()
	if err != nil {
		return 0
	}
	return len(list)
}

// publish pushes the current snapshot to the subscriber, if any; callers
// hold the conversation lock.
func (o *Orchestrator) publish(ctx context.Context, conversationID string, store *timeline.Store) *models.Timeline {
	snapshot := store.Snapshot()
	o.broadcast.Broadcast(ctx, conversationID, snapshot)
	return snapshot
}

func (o *Orchestrator) conversationLock(conversationID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[conversationID] = lock
	}
	return lock
}

func (o *Orchestrator) timelineStore(conversationID string) *timeline.Store {
	o.mu.Lock()
	defer o.mu.Unlock()
	store, ok := o.timelines[conversationID]
	if !ok {
		store = timeline.New(conversationID)
		o.timelines[conversationID] = store
	}
	return store
}

// newMessage mints a message with a timestamp strictly greater than the
// previous one in the conversation, even within one wall-clock millisecond.
func (o *Orchestrator) newMessage(conversationID string, role models.Role, content, timelineRef string) models.Message {
	o.mu.Lock()
	stamp := time.Now().UnixMilli()
	if last := o.lastStamp[conversationID]; stamp <= last {
		stamp = last + 1
	}
	o.lastStamp[conversationID] = stamp
	o.mu.Unlock()

	return models.Message{
		ID:          uuid.New().String(),
		Role:        role,
		Content:     content,
		TimestampMS: stamp,
		TimelineRef: timelineRef,
	}
}

// historyFromMessages projects the stored transcript into the history the
// model sees. Tool-role transcripts are not persisted, so only user and
// assistant turns carry over.
func historyFromMessages(msgs []models.Message) []agent.HistoryMessage {
	var out []agent.HistoryMessage
	for _, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		out = append(out, agent.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// isPlaceholderID matches the ids dashboards use before a conversation is
// created server-side.
func isPlaceholderID(id string) bool {
	return len(id) > 4 && (id[:5] == "mock-" || id[:4] == "new-")
}
