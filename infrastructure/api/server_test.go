package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/infrastructure/files"
	"github.com/ahrav/go-council/infrastructure/storage"
	"github.com/ahrav/go-council/infrastructure/tools"
	"github.com/ahrav/go-council/internal/application"
	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/testutils"
)

const (
	modelA    = "gpt-4.1-mini"
	modelB    = "claude-sonnet-4-6"
	chairman  = "gemini-2.5-pro"
	optimizer = "gpt-4.1"
)

func init() { gin.SetMode(gin.TestMode) }

func scriptedProvider() *testutils.ScriptedProvider {
	usage := domain.Usage{InputTokens: 1000, OutputTokens: 500}
	ranking := "FINAL RANKING:\n1. Response B\n2. Response A"
	return testutils.NewScriptedProvider().
		On(modelA, testutils.Reply{Pattern: "FINAL RANKING", Content: ranking, Usage: usage}).
		Answer(modelA, "answer from A", usage).
		On(modelB, testutils.Reply{Pattern: "FINAL RANKING", Content: ranking, Usage: usage}).
		Answer(modelB, "answer from B", usage).
		On(chairman, testutils.Reply{
			Pattern: "reflect on how it could be improved",
			Content: "CRITIQUE:\nFine.\n\nSUGGESTED_SYSTEM_PROMPT:\nBe brief.\n\nSUGGESTED_QUERY:\nWhat is Go?",
			Usage:   usage,
		}).
		On(chairman, testutils.Reply{Pattern: "synthesize all of this information", Content: "final answer", Usage: usage}).
		On(application.DefaultTitleModel, testutils.Reply{Pattern: "very short title", Content: "Go Overview"}).
		Answer(optimizer, "Explain Go in three bullet points.", usage)
}

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *storage.JSONStore
	files   *files.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewJSONStore(dir + "/conversations")
	require.NoError(t, err)
	fm, err := files.NewManager(dir+"/files", nil, zerolog.Nop())
	require.NoError(t, err)

	council := application.NewCouncil(scriptedProvider(), application.CouncilConfig{
		CallTimeout:          time.Second,
		TitleTimeout:         time.Second,
		DefaultCouncilModels: []string{modelA, modelB},
		DefaultChairmanModel: chairman,
	})
	registry := tools.NewDefaultRegistry(tools.Config{})
	connectors := tools.NewDefaultConnectors(tools.Config{})

	reg := prometheus.NewRegistry()
	srv := NewServer(Deps{
		Store: store,
		Files: fm,
		Turns: application.NewTurnService(council, application.TurnDeps{
			Store: store, Files: fm, Tools: registry, Connectors: connectors, Logger: zerolog.Nop(),
		}),
		Optimizer:  application.NewPromptOptimizer(council),
		Templates:  application.DefaultTemplateCatalog(),
		Tools:      registry,
		Connectors: connectors,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:     zerolog.Nop(),
	}, Options{CORSOrigins: []string{"http://localhost:5173"}})

	return &testEnv{server: srv, handler: srv.Handler(), store: store, files: fm}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) createConversation(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/conversations", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	return conv.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// TestHealth tests the root endpoint.
func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"LLM Council API"}`, w.Body.String())
}

// TestCatalogEndpoints tests the static catalog routes.
func TestCatalogEndpoints(t *testing.T) {
	e := newTestEnv(t)

	models := decode[map[string][]string](t, e.do(t, http.MethodGet, "/api/models", nil))
	assert.Contains(t, models["Google"], chairman)

	pricing := decode[map[string]domain.ModelPrice](t, e.do(t, http.MethodGet, "/api/pricing", nil))
	assert.Equal(t, domain.ModelPrice{Input: 0.40, Output: 1.60}, pricing[modelA])

	templates := decode[[]application.PromptTemplate](t, e.do(t, http.MethodGet, "/api/templates", nil))
	assert.NotEmpty(t, templates)

	toolList := decode[[]toolView](t, e.do(t, http.MethodGet, "/api/tools", nil))
	var names []string
	for _, tv := range toolList {
		names = append(names, tv.Name)
	}
	assert.Equal(t, []string{"web_search", "url_fetch", "calculator"}, names)

	conns := decode[[]map[string]any](t, e.do(t, http.MethodGet, "/api/connectors", nil))
	require.Len(t, conns, 3)
	assert.Equal(t, "web_search_prequery", conns[0]["name"])
	assert.Contains(t, conns[0], "config_schema")
	assert.Contains(t, conns[0], "type")
}

// TestRenderTemplate tests template rendering and unknown ids.
func TestRenderTemplate(t *testing.T) {
	e := newTestEnv(t)
	id := application.DefaultTemplateCatalog().List()[0].ID

	w := e.do(t, http.MethodPost, "/api/templates/"+id+"/render", map[string]any{"values": map[string]string{}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[map[string]string](t, w)["system_prompt"])

	w = e.do(t, http.MethodPost, "/api/templates/nope/render", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Template not found"}`, w.Body.String())
}

// TestConversations tests create, get, list, and unknown ids.
func TestConversations(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConversation(t)

	w := e.do(t, http.MethodGet, "/api/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	conv := decode[domain.Conversation](t, w)
	assert.Equal(t, domain.DefaultConversationTitle, conv.Title)
	assert.Empty(t, conv.Messages)

	list := decode[[]domain.ConversationMetadata](t, e.do(t, http.MethodGet, "/api/conversations", nil))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	w = e.do(t, http.MethodGet, "/api/conversations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Conversation not found"}`, w.Body.String())
}

func multipartBody(t *testing.T, parts map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		h.Set("Content-Type", "text/plain")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// TestFiles tests the upload, list, download, and delete lifecycle.
func TestFiles(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConversation(t)
	base := "/api/conversations/" + id + "/files"

	body, ct := multipartBody(t, map[string]string{"notes.txt": "remember the milk"})
	r := httptest.NewRequest(http.MethodPost, base, body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	uploaded := decode[[]map[string]any](t, w)
	require.Len(t, uploaded, 1)
	assert.Equal(t, "notes.txt", uploaded[0]["filename"])
	assert.Equal(t, "text/plain", uploaded[0]["content_type"])
	assert.EqualValues(t, 17, uploaded[0]["size_bytes"])
	assert.NotContains(t, uploaded[0], "storage_path")
	assert.NotContains(t, uploaded[0], "extracted_text")
	fileID := uploaded[0]["id"].(string)

	listed := decode[[]fileView](t, e.do(t, http.MethodGet, base, nil))
	require.Len(t, listed, 1)
	assert.Equal(t, fileID, listed[0].ID)

	w = e.do(t, http.MethodGet, base+"/"+fileID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "remember the milk", w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	w = e.do(t, http.MethodDelete, base+"/"+fileID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = e.do(t, http.MethodDelete, base+"/"+fileID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"File not found"}`, w.Body.String())

	w = e.do(t, http.MethodGet, base+"/"+fileID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestUploadErrors tests uploads to unknown conversations and empty forms.
func TestUploadErrors(t *testing.T) {
	e := newTestEnv(t)

	body, ct := multipartBody(t, map[string]string{"a.txt": "a"})
	r := httptest.NewRequest(http.MethodPost, "/api/conversations/unknown/files", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := e.createConversation(t)
	body, ct = multipartBody(t, nil)
	r = httptest.NewRequest(http.MethodPost, "/api/conversations/"+id+"/files", body)
	r.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestSendMessage tests the non-streaming turn endpoint.
func TestSendMessage(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConversation(t)

	w := e.do(t, http.MethodPost, "/api/conversations/"+id+"/message", map[string]any{
		"content":        "What is Go?",
		"council_models": []string{modelA, modelB},
		"chairman_model": chairman,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[application.RunResult](t, w)
	assert.Len(t, result.Stage1, 2)
	assert.Len(t, result.Stage2, 2)
	assert.Equal(t, "final answer", result.Stage3.Response)
	require.NotNil(t, result.Stage4)
	assert.Equal(t, "Fine.", result.Stage4.Critique)
	require.NotNil(t, result.CostSummary)
	assert.Equal(t, modelB, result.Metadata.AggregateRankings[0].Model)

	conv, err := e.store.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "Go Overview", conv.Title)
	assert.Len(t, conv.Messages, 2)
}

// TestSendMessage_Invalid tests request validation failures.
func TestSendMessage_Invalid(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConversation(t)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing content", "/api/conversations/" + id + "/message", map[string]any{}, http.StatusBadRequest},
		{"bad effort", "/api/conversations/" + id + "/message", map[string]any{"content": "x", "reasoning_effort": "max"}, http.StatusBadRequest},
		{"unknown conversation", "/api/conversations/nope/message", map[string]any{"content": "x"}, http.StatusNotFound},
		{"malformed json", "/api/conversations/" + id + "/message", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"detail"`)
		})
	}
}

func readEvents(t *testing.T, body string) []application.Event {
	t.Helper()
	var events []application.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev application.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

// TestStreamMessage tests the event stream of a first turn.
func TestStreamMessage(t *testing.T) {
	e := newTestEnv(t)
	id := e.createConversation(t)

	w := e.do(t, http.MethodPost, "/api/conversations/"+id+"/message/stream", map[string]any{
		"content":        "What is Go?",
		"council_models": []string{modelA, modelB},
		"chairman_model": chairman,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	var types []application.EventType
	for _, ev := range readEvents(t, w.Body.String()) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []application.EventType{
		application.EventStage1Start, application.EventStage1Complete,
		application.EventStage2Start, application.EventStage2Complete,
		application.EventStage3Start, application.EventStage3Complete,
		application.EventStage4Start, application.EventStage4Complete,
		application.EventTitleComplete, application.EventCostSummary, application.EventComplete,
	}, types)
}

// TestStreamMessage_UnknownConversation tests that errors before the first
// event are plain JSON responses.
func TestStreamMessage_UnknownConversation(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/conversations/nope/message/stream", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Conversation not found"}`, w.Body.String())
}

// TestOptimizePrompt tests success and model failure.
func TestOptimizePrompt(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/optimize-prompt", map[string]any{"prompt": "tell me go", "model": optimizer})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"optimized_prompt":"Explain Go in three bullet points."}`, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/optimize-prompt", map[string]any{"prompt": "x", "model": "unscripted-model"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Failed to optimize prompt"}`, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/optimize-prompt", map[string]any{"model": optimizer})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestCORS tests the preflight response for an allowed origin.
func TestCORS(t *testing.T) {
	e := newTestEnv(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

// TestMetricsEndpoint tests that the metrics handler is mounted.
func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestFail tests the mapping of errors to status codes.
func TestFail(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrConversationNotFound, http.StatusNotFound},
		{domain.ErrFileNotFound, http.StatusNotFound},
		{domain.ErrUnknownTemplate, http.StatusNotFound},
		{&domain.ValidationError{Entity: "message", Errors: []string{"bad"}}, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	srv := NewServer(Deps{Logger: zerolog.Nop()}, Options{})
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		srv.fail(c, tt.err)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
	}
}
