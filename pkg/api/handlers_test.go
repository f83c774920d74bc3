package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexagent/nexagent/pkg/agent"
	"github.com/nexagent/nexagent/pkg/classifier"
	"github.com/nexagent/nexagent/pkg/config"
	"github.com/nexagent/nexagent/pkg/conversation"
	"github.com/nexagent/nexagent/pkg/events"
	"github.com/nexagent/nexagent/pkg/orchestrator"
	"github.com/nexagent/nexagent/pkg/responder"
	"github.com/nexagent/nexagent/pkg/tools"
)

func newTestServer(t *testing.T, llm agent.LLMClient) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.DataRoot = t.TempDir()

	manager, err := conversation.NewManager(cfg.Storage.DataRoot)
	require.NoError(t, err)

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.NewTerminateTool()))
	cancels := agent.NewCancelRegistry()
	loop := agent.NewLoop(llm, tools.NewDispatcher(reg, 0, 0), cfg.Agent, cancels)
	broadcast := events.NewBroadcaster()

	orch := orchestrator.New(cfg, manager, classifier.New(cfg.Classifier),
		responder.New(cfg.Responder), loop, cancels, broadcast)
	return NewServer(cfg, orch, broadcast, reg, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())
	rec := doJSON(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[RootResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMessageHandler_Chat(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())
	rec := doJSON(t, s, http.MethodPost, "/api/message", MessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[MessageResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Content)
	assert.NotEmpty(t, resp.ConversationID)
	assert.True(t, resp.Created)
	assert.Equal(t, "chat", resp.Mode)
	require.NotNil(t, resp.Timeline)
	assert.Greater(t, resp.Timeline.EventCount, 0)
}

func TestMessageHandler_EmptyContent(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())

	for _, content := range []string{"", "   ", "\n\t"} {
		rec := doJSON(t, s, http.MethodPost, "/api/message", MessageRequest{Content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "content=%q", content)
	}
}

func TestMessageHandler_InvalidMode(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())
	rec := doJSON(t, s, http.MethodPost, "/api/message",
		MessageRequest{Content: "hi", ProcessingMode: "turbo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageHandler_AgentMode(t *testing.T) {
	llm := agent.NewScriptedLLMClient(
		agent.Completion{ToolCalls: []agent.ToolCall{{
			Name: tools.TerminateName,
			Args: map[string]any{"status": "success", "message": "All done."},
		}}},
	)
	s := newTestServer(t, llm)

	rec := doJSON(t, s, http.MethodPost, "/api/message",
		MessageRequest{Content: "do the thing", ProcessingMode: "agent"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[MessageResponse](t, rec)
	assert.Equal(t, "agent", resp.Mode)
	assert.Equal(t, "All done.", resp.Content)
}

func TestConversationEndpoints(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())

	rec := doJSON(t, s, http.MethodPost, "/api/message", MessageRequest{Content: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[MessageResponse](t, rec)

	// List carries the new conversation.
	rec = doJSON(t, s, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ConversationListResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, created.ConversationID, list.Conversations[0].ID)

	// Detail has the transcript.
	rec = doJSON(t, s, http.MethodGet, "/api/conversations/"+created.ConversationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hello"`)

	// Unknown id is a 404.
	rec = doJSON(t, s, http.MethodGet, "/api/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTimelineEndpoint(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())

	// Placeholder ids yield an empty timeline, not a 404.
	rec := doJSON(t, s, http.MethodGet, "/api/conversations/mock-1/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_count":0`)

	rec = doJSON(t, s, http.MethodGet, "/api/conversations/unknown/timeline", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	created := decode[MessageResponse](t,
		doJSON(t, s, http.MethodPost, "/api/message", MessageRequest{Content: "hello"}))
	rec = doJSON(t, s, http.MethodGet, "/api/conversations/"+created.ConversationID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"event_count":0`)
}

func TestCancelEndpoint(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())

	rec := doJSON(t, s, http.MethodPost, "/api/conversations/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	created := decode[MessageResponse](t,
		doJSON(t, s, http.MethodPost, "/api/message", MessageRequest{Content: "hello"}))
	rec = doJSON(t, s, http.MethodPost, "/api/conversations/"+created.ConversationID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CancelResponse](t, rec)
	assert.False(t, resp.Cancelled)
	assert.Equal(t, "no agent run in progress", resp.Message)
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())
	created := decode[MessageResponse](t,
		doJSON(t, s, http.MethodPost, "/api/message", MessageRequest{Content: "hello"}))

	rec := doJSON(t, s, http.MethodPost,
		"/api/conversations/"+created.ConversationID+"/export", ExportRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[conversation.ExportResult](t, rec)
	assert.Equal(t, conversation.FormatMarkdown, res.Format)
	assert.FileExists(t, res.Path)

	rec = doJSON(t, s, http.MethodPost,
		"/api/conversations/"+created.ConversationID+"/export", ExportRequest{Format: "docx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsEndpoint(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())
	rec := doJSON(t, s, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ToolListResponse](t, rec)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, tools.TerminateName, resp.Tools[0].Name)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())
	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.Equal(t, "nexagent", resp.Server)
	assert.NotEmpty(t, resp.Version)
	assert.Greater(t, resp.TimestampMS, int64(0))
	assert.Equal(t, 0, resp.Connections)
	assert.Equal(t, 0, resp.Conversations)
}

func TestHealthEndpoint_RateLimited(t *testing.T) {
	s := newTestServer(t, agent.NewScriptedLLMClient())

	// httptest requests share one remote address, so the bucket drains.
	for i := 0; i < healthRateBurst; i++ {
		rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	resp := decode[RateLimitedResponse](t, rec)
	assert.GreaterOrEqual(t, resp.RetryAfter, 1)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
