package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/internal/agent"
	"fable/internal/llm"
	"fable/internal/observability"
	"fable/internal/session"
	"fable/internal/tools"
	"fable/internal/types"
)

func testServer(t *testing.T, client llm.Client, registry *tools.Registry, toolNames []string) *Server {
	t.Helper()

	sessions, err := session.NewManager(session.ManagerConfig{
		Backend:   session.BackendMemory,
		HumanCap:  session.DefaultHumanCap,
		CacheSize: 16,
	})
	require.NoError(t, err)

	// A dead endpoint: history and download writes are absorbed, which is
	// all these tests need.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	tracer, err := observability.NewTracerProvider(observability.TracingConfig{Enabled: false})
	require.NoError(t, err)

	testAgent := agent.New(agent.Config{
		Name:      "test_agent",
		Tools:     map[string][]string{tools.DefaultEnv: toolNames},
		FinalTool: "finish_task",
		MaxSteps:  5,
	}, registry, llm.NewGateway(client, 5))

	return New(Config{BasePath: "/fable"}, Deps{
		Agent:    testAgent,
		Sessions: sessions,
		History:  session.NewHistoryManager(rdb, nil, 20),
		Redis:    rdb,
		Tracer:   tracer,
		Metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	})
}

func TestActuatorEndpoints(t *testing.T) {
	s := testServer(t, &llm.MockClient{}, tools.NewRegistry(), nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/actuator/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/actuator/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "UP")
}

func TestStreamEndpointStreamsText(t *testing.T) {
	client := &llm.MockClient{
		Responses:  []types.Message{types.NewAIMessage("hello there")},
		StreamText: map[int][]string{0: {"hello ", "there"}},
	}
	s := testServer(t, client, tools.NewRegistry(), nil)

	body := strings.NewReader(`{"message": "hi", "sessionId": "s-stream-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/fable/stream/", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `data: {"content":"hello "}`)
	assert.Contains(t, w.Body.String(), `data: {"content":"there"}`)
}

func TestStreamEndpointEmitsPendingConfirmations(t *testing.T) {
	registry := tools.NewRegistry()
	registry.MustRegister(&tools.Tool{
		Name:           "delete_file",
		Parameters:     tools.ObjectSchema(map[string]any{"path": tools.StringProperty("path")}),
		RequireConfirm: true,
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, nil
		},
	})

	ai := types.NewAIMessage("")
	ai.ToolCalls = []types.ToolCall{{ID: "c1", Name: "delete_file", Arguments: map[string]any{"path": "/a"}}}
	client := &llm.MockClient{Responses: []types.Message{ai}}
	s := testServer(t, client, registry, []string{"delete_file"})

	body := strings.NewReader(`{"message": "remove it", "sessionId": "s-stream-2"}`)
	req := httptest.NewRequest(http.MethodPost, "/fable/stream/", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tool_call: [")
	assert.Contains(t, w.Body.String(), `"tool_call_id":"c1"`)
	assert.Contains(t, w.Body.String(), `"tool_confirm_action":"to_confirm"`)
}

func TestStreamEndpointToolCallErrorRepairsSession(t *testing.T) {
	bad := types.NewAIMessage("")
	bad.InvalidToolCalls = []types.ToolCall{{ID: "x", Name: "broken"}}
	client := &llm.MockClient{Responses: []types.Message{bad, bad, bad, bad, bad}}
	s := testServer(t, client, tools.NewRegistry(), nil)

	body := strings.NewReader(`{"message": "hi", "sessionId": "s-stream-3"}`)
	req := httptest.NewRequest(http.MethodPost, "/fable/stream/", body)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Unable to answer, please ask again")
}

func TestStreamEndpointRejectsBadBody(t *testing.T) {
	s := testServer(t, &llm.MockClient{}, tools.NewRegistry(), nil)

	req := httptest.NewRequest(http.MethodPost, "/fable/stream/", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpointsRequireUser(t *testing.T) {
	s := testServer(t, &llm.MockClient{}, tools.NewRegistry(), nil)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/fable/session-history/abc"},
		{http.MethodDelete, "/fable/session-history/abc"},
		{http.MethodGet, "/fable/user-sessions"},
		{http.MethodDelete, "/fable/user-sessions"},
		{http.MethodGet, "/fable/session-meta/abc"},
	} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t, &llm.MockClient{}, tools.NewRegistry(), nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
