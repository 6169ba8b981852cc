package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"aideck/internal/deck"
	"aideck/internal/event"
	"aideck/internal/logging"
	"aideck/internal/metrics"
	"aideck/internal/session"
	"aideck/internal/tool"
)

// fakePty satisfies session.Pty over an in-memory pipe. Reads block
// until emit supplies output, mirroring a quiet terminal.
type fakePty struct {
	mu     sync.Mutex
	input  bytes.Buffer
	cols   uint16
	rows   uint16
	closed bool

	outR *io.PipeReader
	outW *io.PipeWriter
}

func newFakePty() *fakePty {
	r, w := io.Pipe()
	return &fakePty{outR: r, outW: w}
}

func (f *fakePty) Read(p []byte) (int, error) { return f.outR.Read(p) }

func (f *fakePty) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.Write(p)
}

func (f *fakePty) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.outW.Close()
	f.outR.Close()
	return nil
}

func (f *fakePty) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols, f.rows = cols, rows
	return nil
}

func (f *fakePty) emit(text string) {
	_, _ = f.outW.Write([]byte(text))
}

func (f *fakePty) inputText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.String()
}

func (f *fakePty) size() (uint16, uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cols, f.rows
}

type fakePtyFactory struct {
	mu   sync.Mutex
	ptys []*fakePty
}

func (f *fakePtyFactory) Start(session.StartRequest) (session.Pty, *exec.Cmd, error) {
	pty := newFakePty()
	f.mu.Lock()
	f.ptys = append(f.ptys, pty)
	f.mu.Unlock()
	return pty, nil, nil
}

func (f *fakePtyFactory) pty(i int) *fakePty {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.ptys) {
		return nil
	}
	return f.ptys[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testServer struct {
	server  *Server
	deck    *deck.Deck
	ptys    *fakePtyFactory
	logger  *logging.Logger
	metrics *metrics.Registry
	bus     *event.Bus[event.DeckEvent]
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()

	tools := tool.NewRegistry(tool.RegistryOptions{Defaults: []tool.Tool{
		{
			Name:    "claude",
			Command: []string{"sh"},
			URL:     "https://example.com/claude",
			Match:   []string{"claude"},
		},
		{
			Name:    "vanish",
			Command: []string{"definitely-not-on-path-aideck"},
			URL:     "https://example.com/vanish",
		},
	}})

	ptys := &fakePtyFactory{}
	logger := logging.NewWithOutput(logging.LevelDebug, io.Discard)
	meter := &metrics.Registry{}
	bus := event.NewBus[event.DeckEvent](context.Background(), event.Options{
		Name:    "deck",
		History: 100,
		Logger:  logger,
	})
	t.Cleanup(bus.Close)

	d := deck.New(deck.Options{
		Tools:        tools,
		Factory:      session.NewFactory(session.FactoryOptions{PtyFactory: ptys, Logger: logger}),
		Bus:          bus,
		Logger:       logger,
		Metrics:      meter,
		DefaultTool:  "claude",
		CreateGrace:  10 * time.Second,
		ReadyTimeout: 10 * time.Second,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})

	return &testServer{
		server: NewServer(Options{
			Deck:           d,
			Logger:         logger,
			Metrics:        meter,
			Token:          token,
			AllowedOrigins: []string{"*"},
		}),
		deck:    d,
		ptys:    ptys,
		logger:  logger,
		metrics: meter,
		bus:     bus,
	}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func statePath(id string, parts ...string) string {
	path := "/api/states/" + url.PathEscape(id)
	for _, part := range parts {
		path += "/" + part
	}
	return path
}

func TestHealthzWithoutToken(t *testing.T) {
	ts := newTestServer(t, "secret")
	rec := ts.request(t, http.MethodGet, "/api/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec); got["status"] != "ok" {
		t.Fatalf("healthz body = %v", got)
	}
}

func TestAuthToken(t *testing.T) {
	ts := newTestServer(t, "secret")

	rec := ts.request(t, http.MethodGet, "/api/tools", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without token: status = %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "unauthorized" {
		t.Fatalf("error code = %q", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with bearer token: status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/tools?token=secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("with query token: status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/tools?token=wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("with wrong token: status = %d", rec.Code)
	}
}

func TestToolsListing(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.request(t, http.MethodGet, "/api/tools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[toolsResponse](t, rec)
	if len(resp.Tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(resp.Tools))
	}

	rec = ts.request(t, http.MethodPut, "/api/tools", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET" {
		t.Fatalf("Allow header = %q", allow)
	}
}

func TestCreateAndFetchState(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[stateSummary](t, rec)
	if created.ID != "claude 1" || !created.Attached {
		t.Fatalf("created = %+v", created)
	}
	if created.Backend != session.KindPty {
		t.Fatalf("backend = %q", created.Backend)
	}

	rec = ts.request(t, http.MethodGet, "/api/states", nil)
	list := decodeBody[statesResponse](t, rec)
	if len(list.States) != 1 || list.States[0].ID != "claude 1" {
		t.Fatalf("list = %+v", list)
	}

	rec = ts.request(t, http.MethodGet, statePath("claude 1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, statePath("claude 9"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing state status = %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "no_state" || resp.StateID != "claude 9" {
		t.Fatalf("missing state error = %+v", resp)
	}
}

func TestListStatesFilters(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude", Show: true})

	rec := ts.request(t, http.MethodGet, "/api/states?terminal=true", nil)
	list := decodeBody[statesResponse](t, rec)
	if len(list.States) != 1 || list.States[0].ID != "claude 2" {
		t.Fatalf("terminal filter = %+v", list.States)
	}

	rec = ts.request(t, http.MethodGet, "/api/states?name=codex", nil)
	list = decodeBody[statesResponse](t, rec)
	if len(list.States) != 0 {
		t.Fatalf("name filter = %+v", list.States)
	}

	rec = ts.request(t, http.MethodGet, "/api/states?attached=sideways", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad bool status = %d", rec.Code)
	}
}

func TestCreateStateErrors(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tool status = %d", rec.Code)
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Code != "tool_not_found" {
		t.Fatalf("unknown tool code = %q", resp.Code)
	}

	rec = ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "vanish"})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("not installed status = %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != "tool_not_installed" || resp.URL != "https://example.com/vanish" {
		t.Fatalf("not installed error = %+v", resp)
	}

	rec = ts.request(t, http.MethodPost, "/api/states", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", rec.Code)
	}
}

func terminalPath(id, action string) string {
	return "/api/terminals/" + url.PathEscape(id) + "/" + action
}

func TestTerminalActions(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude", Show: true})

	rec := ts.request(t, http.MethodPost, terminalPath("claude 1", "hide"), nil)
	summary := decodeBody[stateSummary](t, rec)
	if summary.Terminal == nil || summary.Terminal.Open {
		t.Fatalf("after hide: %+v", summary.Terminal)
	}

	rec = ts.request(t, http.MethodPost, terminalPath("claude 1", "toggle")+"?focus=true", nil)
	summary = decodeBody[stateSummary](t, rec)
	if summary.Terminal == nil || !summary.Terminal.Open || !summary.Terminal.Focused {
		t.Fatalf("after toggle: %+v", summary.Terminal)
	}

	// Toggle on a visible focused terminal drops focus but never hides.
	rec = ts.request(t, http.MethodPost, terminalPath("claude 1", "toggle")+"?focus=true", nil)
	summary = decodeBody[stateSummary](t, rec)
	if summary.Terminal == nil || !summary.Terminal.Open || summary.Terminal.Focused {
		t.Fatalf("after second toggle: %+v", summary.Terminal)
	}

	rec = ts.request(t, http.MethodPost, terminalPath("claude 1", "focus"), nil)
	summary = decodeBody[stateSummary](t, rec)
	if !summary.Terminal.Focused {
		t.Fatalf("after focus: %+v", summary.Terminal)
	}

	rec = ts.request(t, http.MethodPost, terminalPath("claude 1", "blur"), nil)
	summary = decodeBody[stateSummary](t, rec)
	if summary.Terminal.Focused {
		t.Fatalf("after blur: %+v", summary.Terminal)
	}

	rec = ts.request(t, http.MethodGet, terminalPath("claude 1", "hide"), nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET action status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodPost, terminalPath("claude 1", "dance"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown action status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodPost, terminalPath("claude 9", "show"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown state status = %d", rec.Code)
	}
}

func TestSelectReusesOrCreates(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.request(t, http.MethodPost, "/api/select", selectStateRequest{Tool: "claude"})
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[stateSummary](t, rec)
	if created.ID != "claude 1" {
		t.Fatalf("selected = %+v", created)
	}
	if created.Terminal == nil || !created.Terminal.Open {
		t.Fatalf("select must raise the terminal: %+v", created.Terminal)
	}

	rec = ts.request(t, http.MethodPost, "/api/select", selectStateRequest{Tool: "claude"})
	reused := decodeBody[stateSummary](t, rec)
	if reused.ID != "claude 1" {
		t.Fatalf("second select created %q", reused.ID)
	}
	if ts.deck.States().Len() != 1 {
		t.Fatalf("states = %d, want 1", ts.deck.States().Len())
	}
}

func TestDeleteState(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	rec := ts.request(t, http.MethodDelete, statePath("claude 1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	if ts.deck.States().Len() != 0 {
		t.Fatal("state still registered after delete")
	}

	rec = ts.request(t, http.MethodDelete, statePath("claude 1"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestSendDeliversToExistingState(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	rec := ts.request(t, http.MethodPost, "/api/send", sendRequest{Msg: "hello", Name: "claude", Submit: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d: %s", rec.Code, rec.Body.String())
	}

	pty := ts.ptys.pty(0)
	waitFor(t, "delivery", func() bool {
		return strings.Contains(pty.inputText(), "hello\n")
	})
	waitFor(t, "submit", func() bool {
		return strings.Contains(pty.inputText(), "\r")
	})
}

func TestSendNothingToSend(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.request(t, http.MethodPost, "/api/send", sendRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Code != "nothing_to_send" {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestRenderPreview(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.request(t, http.MethodPost, "/api/render", renderRequest{Msg: "typed", Selection: "ignored"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[renderResponse](t, rec)
	if result.Text != "typed\n" {
		t.Fatalf("rendered text = %q", result.Text)
	}

	if ts.deck.States().Len() != 0 {
		t.Fatal("render must not create states")
	}
}

func TestStateInputTypesVerbatim(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	req := httptest.NewRequest(http.MethodPost, statePath("claude 1", "input")+"?submit=true", strings.NewReader("abc"))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("input status = %d: %s", rec.Code, rec.Body.String())
	}

	pty := ts.ptys.pty(0)
	waitFor(t, "typed input", func() bool {
		return strings.Contains(pty.inputText(), "abc") && strings.Contains(pty.inputText(), "\r")
	})

	req = httptest.NewRequest(http.MethodPost, statePath("claude 1", "input"), strings.NewReader(""))
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty input status = %d", rec.Code)
	}
}

func TestStateInputHistory(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	req := httptest.NewRequest(http.MethodPost, statePath("claude 1", "input"), strings.NewReader("abc"))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("input status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.request(t, http.MethodGet, statePath("claude 1", "input"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d: %s", rec.Code, rec.Body.String())
	}
	history := decodeBody[stateInputsResponse](t, rec)
	if len(history.Inputs) != 1 || history.Inputs[0].Text != "abc" {
		t.Fatalf("inputs = %+v", history.Inputs)
	}
	if history.Inputs[0].Submitted {
		t.Fatal("plain input should not be marked submitted")
	}
}

func TestStateOutputSnapshot(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	ts.ptys.pty(0).emit("line one\nline two\n")
	waitFor(t, "output capture", func() bool {
		rec := ts.request(t, http.MethodGet, statePath("claude 1", "output")+"?lines=10", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		resp := decodeBody[stateOutputResponse](t, rec)
		return len(resp.Lines) >= 2
	})

	rec := ts.request(t, http.MethodGet, statePath("claude 1", "output")+"?lines=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad lines status = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	rec := ts.request(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[statusResponse](t, rec)
	if resp.States != 1 || resp.Attached != 1 || resp.Tools != 2 {
		t.Fatalf("status body = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	ts.request(t, http.MethodPost, "/api/states", createStateRequest{Tool: "claude"})

	rec := ts.request(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "aideck_states_created_total 1") {
		t.Fatalf("metrics body missing counter:\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestLogsTail(t *testing.T) {
	ts := newTestServer(t, "")
	ts.logger.Info("breadcrumb", map[string]string{"k": "v"})
	ts.logger.Warn("trouble", nil)

	rec := ts.request(t, http.MethodGet, "/api/logs?limit=50", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[logsResponse](t, rec)
	if len(resp.Logs) < 2 {
		t.Fatalf("logs = %d entries", len(resp.Logs))
	}

	rec = ts.request(t, http.MethodGet, "/api/logs?level=warning", nil)
	resp = decodeBody[logsResponse](t, rec)
	for _, entry := range resp.Logs {
		if entry.Level != logging.LevelWarning {
			t.Fatalf("level filter leaked %q", entry.Level)
		}
	}

	rec = ts.request(t, http.MethodGet, "/api/logs?level=loud", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad level status = %d", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.request(t, http.MethodGet, "/api/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version == "" {
		t.Fatal("version missing")
	}
}
