package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionos/companion/internal/judge"
	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/pipeline"
	"github.com/companionos/companion/internal/services"
	"github.com/companionos/companion/internal/store/sqlite"
	"github.com/companionos/companion/internal/tools"
	"github.com/companionos/companion/internal/tools/alerts"
)

type staticHealth struct {
	healthy bool
}

func (s staticHealth) IsHealthy() bool { return s.healthy }
func (s staticHealth) Components() map[string]bool {
	return map[string]bool{"store": s.healthy, "model_backend": true}
}

type fakeModels struct {
	models []string
	err    error
}

func (f fakeModels) Models(context.Context) ([]string, error) { return f.models, f.err }

type testServer struct {
	*httptest.Server
	st *sqlite.Store
}

func newTestServer(t *testing.T, backend llm.BackendFunc) *testServer {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.New(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if backend == nil {
		backend = func(_ context.Context, r llm.Request) (string, error) {
			switch r.Class {
			case llm.ClassGenerate:
				return "Hi! How can I help?", nil
			case llm.ClassJudge:
				return `{"verdict":"PASS","reason":"fine","risk_tags":[]}`, nil
			case llm.ClassAlert:
				return `{"create":[]}`, nil
			}
			return "{}", nil
		}
	}

	log := zerolog.Nop()
	catalog := persona.NewCatalog(persona.Persona{
		ID:           "friend",
		Name:         "Friend",
		Description:  "Warm.",
		MemoryPolicy: persona.MemoryPolicy{Enabled: true, Scope: model.ScopeSession},
	})
	reg, err := tools.Bootstrap(nil, alerts.New(st.Alerts(), backend, alerts.Config{Timeout: time.Second}, log))
	require.NoError(t, err)
	gate := judge.New(backend, judge.Config{Enabled: true, Timeout: time.Second}, log)
	pipe := pipeline.New(st, backend, pipeline.Config{Threshold: 0.8, Cadence: 6, AllowGlobal: true}, log)

	router := NewRouter(Deps{
		Sessions: services.NewSessionService(st, catalog, 6),
		Turns: services.NewTurnService(st, catalog, backend, gate, pipe, reg,
			services.TurnConfig{GenerateTimeout: time.Second, MaxAttempts: 3}, log),
		Memory:       services.NewMemoryService(st),
		Alerts:       services.NewAlertService(st),
		Tools:        services.NewToolService(st, reg),
		Personas:     catalog,
		Health:       staticHealth{healthy: true},
		Backend:      fakeModels{models: []string{"llama3.2:3b", "phi3:latest"}},
		BackendModel: "phi3",
	}, log)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, st: st}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/sessions", map[string]string{"personaId": "friend"})
	require.Equal(t, http.StatusCreated, code, body)
	return body["sessionId"].(string)
}

func TestHealthAndBackendStatus(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]any{"store": true, "model_backend": true}, body["components"])

	code, body = s.do(t, http.MethodGet, "/api/backend/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["reachable"])
	assert.Equal(t, true, body["modelPresent"])
	assert.Equal(t, "phi3", body["model"])
}

func TestBackendStatus_Unreachable(t *testing.T) {
	h := NewBackendHandler(fakeModels{err: errors.New("dial tcp: connection refused")}, "llama3.2:3b", zerolog.Nop())
	rr := httptest.NewRecorder()
	h.Status(rr, httptest.NewRequest(http.MethodGet, "/api/backend/status", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, false, body["reachable"])
	assert.Equal(t, false, body["modelPresent"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestBackendTags(t *testing.T) {
	s := newTestServer(t, nil)
	code, body := s.do(t, http.MethodGet, "/api/backend/tags", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"llama3.2:3b", "phi3:latest"}, body["models"])
	assert.Equal(t, float64(2), body["count"])

	// fakeModels cannot pull, so the route is absent.
	resp, err := http.Post(s.URL+"/api/backend/pull", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	h := NewBackendHandler(fakeModels{err: errors.New("connection refused")}, "phi3", zerolog.Nop())
	rr := httptest.NewRecorder()
	h.Tags(rr, httptest.NewRequest(http.MethodGet, "/api/backend/tags", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

type pullingModels struct {
	fakeModels
	pulled chan string
}

func (p pullingModels) Pull(_ context.Context, name string) error {
	p.pulled <- name
	return nil
}

func TestBackendPull_StartsInBackground(t *testing.T) {
	backend := pullingModels{pulled: make(chan string, 1)}
	h := NewBackendHandler(backend, "llama3.2:3b", zerolog.Nop())
	require.True(t, h.CanPull())

	rr := httptest.NewRecorder()
	h.Pull(rr, httptest.NewRequest(http.MethodPost, "/api/backend/pull", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, map[string]any{"status": "pull_started", "model": "llama3.2:3b"}, body)

	select {
	case name := <-backend.pulled:
		assert.Equal(t, "llama3.2:3b", name)
	case <-time.After(2 * time.Second):
		t.Fatal("pull was not started")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPersonas(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, http.MethodGet, "/api/personas", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = s.do(t, http.MethodGet, "/api/personas/friend", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Friend", body["name"])

	code, _ = s.do(t, http.MethodGet, "/api/personas/ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSessions(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, http.MethodPost, "/api/sessions", map[string]string{"personaId": "ghost"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/sessions", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	sid := s.createSession(t)

	code, body := s.do(t, http.MethodGet, "/api/sessions/"+sid, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "friend", body["personaId"])

	code, body = s.do(t, http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, _ = s.do(t, http.MethodGet, "/api/sessions/missing/messages", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodGet, "/api/sessions/"+sid+"/messages?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestChatSend_FullTurn(t *testing.T) {
	s := newTestServer(t, nil)
	sid := s.createSession(t)

	code, body := s.do(t, http.MethodPost, "/api/chat/send", map[string]string{"sessionId": sid, "message": "hello"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, sid, body["sessionId"])
	assert.Equal(t, "friend", body["personaId"])
	assert.Equal(t, "Hi! How can I help?", body["assistant"])
	assert.EqualValues(t, 1, body["attempts"])

	verdict := body["judge"].(map[string]any)
	assert.Equal(t, "PASS", verdict["verdict"])
	assert.Equal(t, []any{}, verdict["riskTags"])

	report := body["pipeline"].(map[string]any)
	assert.EqualValues(t, 2, report["messageCount"])
	assert.Equal(t, []any{}, body["toolEvents"])

	code, body = s.do(t, http.MethodGet, "/api/sessions/"+sid+"/messages", nil)
	require.Equal(t, http.StatusOK, code)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])

	code, body = s.do(t, http.MethodGet, "/api/sessions/"+sid+"/summary", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["summary"])
	debug := body["debug"].(map[string]any)
	assert.EqualValues(t, 2, debug["messageCount"])
	assert.EqualValues(t, 6, debug["nextUpdateAt"])
	assert.Equal(t, false, debug["shouldUpdateAtNext"])
}

func TestChatSend_Errors(t *testing.T) {
	s := newTestServer(t, func(_ context.Context, r llm.Request) (string, error) {
		return "", errors.New("model backend unavailable")
	})
	sid := s.createSession(t)

	code, _ := s.do(t, http.MethodPost, "/api/chat/send", map[string]string{"sessionId": sid, "message": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/chat/send", map[string]string{"sessionId": sid, "message": strings.Repeat("a", 4001)})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/chat/send", map[string]string{"sessionId": "missing", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := s.do(t, http.MethodPost, "/api/chat/send", map[string]string{"sessionId": sid, "message": "hi"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["message"], "model backend unavailable")
}

func TestMemoryEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	sid := s.createSession(t)

	code, body := s.do(t, http.MethodPost, "/api/memory", map[string]any{"key": "name", "value": "Sam"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "global", body["scope"])
	assert.EqualValues(t, 0.8, body["confidence"])
	assert.Nil(t, body["sessionId"])
	itemID := body["itemId"].(string)

	code, body = s.do(t, http.MethodPost, "/api/memory", map[string]any{"key": "name", "value": "Samantha", "confidence": 0.9})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, itemID, body["itemId"], "upsert keeps a single live item per key")

	code, _ = s.do(t, http.MethodPost, "/api/memory", map[string]any{"scope": "session", "key": "mood", "value": "calm"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/memory", map[string]any{"key": "name", "value": "Sam", "confidence": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/memory", map[string]any{"scope": "session", "sessionId": "missing", "key": "mood", "value": "calm"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPost, "/api/memory", map[string]any{"scope": "session", "sessionId": sid, "key": "mood", "value": "calm"})
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/api/memory", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Samantha", items[0].(map[string]any)["value"])

	code, body = s.do(t, http.MethodGet, "/api/memory?scope=session&sessionId="+sid, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	code, _ = s.do(t, http.MethodGet, "/api/memory?scope=session", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodDelete, "/api/memory/"+itemID, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(t, http.MethodDelete, "/api/memory/"+itemID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAlertEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	sid := s.createSession(t)
	ctx := context.Background()

	past, err := s.st.Alerts().Create(ctx, &model.Alert{Scope: model.ScopeSession, SessionID: &sid, Title: "stretch", DueAt: time.Now().Add(-time.Minute), Confidence: 0.8})
	require.NoError(t, err)
	_, err = s.st.Alerts().Create(ctx, &model.Alert{Scope: model.ScopeSession, SessionID: &sid, Title: "dentist", DueAt: time.Now().Add(24 * time.Hour), Confidence: 0.8})
	require.NoError(t, err)

	code, body := s.do(t, http.MethodGet, "/api/alerts?sessionId="+sid, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])

	code, body = s.do(t, http.MethodGet, "/api/alerts/due?sessionId="+sid, nil)
	require.Equal(t, http.StatusOK, code)
	due := body["alerts"].([]any)
	require.Len(t, due, 1)
	assert.Equal(t, "stretch", due[0].(map[string]any)["title"])

	code, body = s.do(t, http.MethodPost, "/api/alerts/"+past.AlertID+"/done", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "done", body["status"])

	code, _ = s.do(t, http.MethodPost, "/api/alerts/"+past.AlertID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(t, http.MethodPost, "/api/alerts/missing/done", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/alerts?status=active&sessionId="+sid, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
	code, _ = s.do(t, http.MethodGet, "/api/alerts?status=snoozed", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestToolEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	sid := s.createSession(t)

	code, body := s.do(t, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, code)
	list := body["tools"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "alerts", list[0].(map[string]any)["toolId"])

	code, _ = s.do(t, http.MethodPut, "/api/tools/settings", map[string]any{"toolId": "alerts"})
	assert.Equal(t, http.StatusBadRequest, code, "enabled is required")
	code, _ = s.do(t, http.MethodPut, "/api/tools/settings", map[string]any{"scope": "session", "toolId": "alerts", "enabled": false})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPut, "/api/tools/settings", map[string]any{"scope": "session", "sessionId": sid, "toolId": "alerts", "enabled": false})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["enabled"])

	code, body = s.do(t, http.MethodGet, "/api/tools/settings?scope=session&sessionId="+sid, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["settings"], 1)
	assert.Equal(t, map[string]any{"alerts": false}, body["effective"])

	code, body = s.do(t, http.MethodGet, "/api/tools/settings", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"alerts": true}, body["effective"])
	code, _ = s.do(t, http.MethodGet, "/api/tools/settings?scope=session", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/api/chat/send", map[string]string{"sessionId": sid, "message": "remind me at 5"})
	require.Equal(t, http.StatusOK, code)
	events := body["toolEvents"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "skipped", events[0].(map[string]any)["event"])
}

func TestRecoveryIsInstalled(t *testing.T) {
	router := NewRouter(Deps{Health: panicHealth{}}, zerolog.Nop())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type panicHealth struct{}

func (panicHealth) IsHealthy() bool             { panic("health state corrupted") }
func (panicHealth) Components() map[string]bool { return nil }
