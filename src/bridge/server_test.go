package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notevault/vaultbridge/src/agentproc"
	"github.com/notevault/vaultbridge/src/agentwire"
	"github.com/notevault/vaultbridge/src/chatstore"
	"github.com/notevault/vaultbridge/src/session"
)

const testSecret = "bridge-secret"

// stubAgent emits a fixed event script per invocation.
type stubAgent struct {
	events []agentwire.Event
}

func (a *stubAgent) Invoke(ctx context.Context, req agentproc.InvokeRequest) (agentwire.Stream, error) {
	return &stubStream{events: a.events}, nil
}

type stubStream struct {
	events []agentwire.Event
	pos    int
}

func (s *stubStream) Read() (*agentwire.Event, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return &ev, nil
}

func (s *stubStream) Close() error { return nil }

func newTestServer(t *testing.T, agent *stubAgent) (*Server, chatstore.Store) {
	t.Helper()
	store := chatstore.NewMemoryStore()
	if agent == nil {
		agent = &stubAgent{events: []agentwire.Event{
			{Type: agentwire.EventAssistantDelta, Delta: "ok"},
			{Type: agentwire.EventResult},
		}}
	}
	mgr := session.NewManager(store, agent, session.Options{})
	return NewServer(store, mgr, testSecret, nil), store
}

func authedRequest(method, target string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	return req
}

func TestHealthzSkipsAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodGet, "/api/chats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndListChats(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodPost, "/api/chats", []byte(`{"title":"Weekly review"}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	var created chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Weekly review", created.Title)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodPost, "/api/chats", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodGet, "/api/chats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list []chatSummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	// Most recently updated first.
	assert.Equal(t, chatstore.DefaultTitle, list[0].Title)
	assert.Equal(t, "Weekly review", list[1].Title)
}

func TestGetMessagesUnknownIDReturnsEmptyList(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodGet, "/api/chats/no-such-id/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRenameAndDeleteChat(t *testing.T) {
	srv, store := newTestServer(t, nil)
	handler := srv.Handler()

	conv, err := store.CreateConversation(context.Background(), "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodPut, "/api/chats/"+conv.ID, []byte(`{"title":"Renamed"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	got, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Title)

	// Delete twice; both succeed.
	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest(http.MethodDelete, "/api/chats/"+conv.ID, nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func turnBody(t *testing.T, id, text string) []byte {
	t.Helper()
	body, err := json.Marshal(turnRequest{
		ID: id,
		Messages: []chatstore.Message{
			{Role: chatstore.RoleUser, Parts: chatstore.PartList{{Type: chatstore.PartText, Text: text}}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestTurnStreamsFragmentsAndPersists(t *testing.T) {
	agent := &stubAgent{events: []agentwire.Event{
		{Type: agentwire.EventAssistantDelta, Delta: "Hi"},
		{Type: agentwire.EventAssistantDelta, Delta: " there"},
		{Type: agentwire.EventAssistantDelta, Delta: "!"},
		{Type: agentwire.EventResult},
	}}
	srv, store := newTestServer(t, agent)
	handler := srv.Handler()

	conv, err := store.CreateConversation(context.Background(), "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(http.MethodPost, "/api/chat", turnBody(t, conv.ID, "Hello")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/x-ndjson")

	var texts []string
	var sawDone bool
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		switch line["type"] {
		case "text":
			texts = append(texts, line["text"].(string))
		case "done":
			sawDone = true
			assert.Equal(t, conv.ID, line["conversationId"])
		}
	}
	assert.Equal(t, []string{"Hi", " there", "!"}, texts)
	assert.True(t, sawDone, "stream must end with a done marker")

	msgs, err := store.GetMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Text())
	assert.Equal(t, "Hi there!", msgs[1].Text())
}

func TestTurnFailureEmitsErrorMarker(t *testing.T) {
	agent := &stubAgent{events: []agentwire.Event{
		{Type: agentwire.EventAssistantDelta, Delta: "part"},
		{Type: agentwire.EventError, Message: "agent crashed"},
	}}
	srv, store := newTestServer(t, agent)

	conv, err := store.CreateConversation(context.Background(), "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/chat", turnBody(t, conv.ID, "Hello")))
	require.Equal(t, http.StatusOK, w.Code)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "error", last["type"])
	assert.Contains(t, last["message"], "agent crashed")

	// The failed turn kept the user message and nothing else.
	msgs, err := store.GetMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chatstore.RoleUser, msgs[0].Role)
}

func TestTurnValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	handler := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{name: "missing id", body: `{"messages":[{"role":"user","parts":[{"type":"text","text":"hi"}]}]}`},
		{name: "no user message", body: `{"id":"abc","messages":[]}`},
		{name: "bad json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, authedRequest(http.MethodPost, "/api/chat", []byte(tt.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
