package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("   ", "", nil); err == nil {
		t.Fatal("expected error for empty base URL")
	}
	c, err := New("http://127.0.0.1:7433/", "tok", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.baseURL != "http://127.0.0.1:7433" {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
}

func TestSendPostsPayloadWithToken(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "secret", nil)
	err := c.Send(SendRequest{Msg: "hello", Name: "claude", Submit: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/api/send" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody.Msg != "hello" || gotBody.Name != "claude" || !gotBody.Submit {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestSendDecodesErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		w.Write([]byte(`{"error":"claude is not installed","code":"tool_not_installed","url":"https://example.com/claude"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", nil)
	err := c.Send(SendRequest{Msg: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !HasCode(err, "tool_not_installed") {
		t.Fatalf("code not decoded: %v", err)
	}
	httpErr := err.(*HTTPError)
	if httpErr.StatusCode != http.StatusPreconditionFailed || httpErr.URL != "https://example.com/claude" {
		t.Fatalf("error = %+v", httpErr)
	}
}

func TestErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", nil)
	err := c.Health()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*HTTPError)
	if !ok || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("error = %v", err)
	}
	if httpErr.Message == "" {
		t.Fatal("message empty")
	}
}

func TestToolsAndPrompts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tools":
			w.Write([]byte(`{"tools":[{"name":"claude","url":"https://example.com"},{"name":"codex","hidden":true}]}`))
		case "/api/prompts":
			w.Write([]byte(`{"prompts":["review","triage"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", nil)
	tools, err := c.Tools()
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "claude" || !tools[1].Hidden {
		t.Fatalf("tools = %+v", tools)
	}

	prompts, err := c.Prompts()
	if err != nil {
		t.Fatalf("Prompts: %v", err)
	}
	if len(prompts) != 2 || prompts[1] != "triage" {
		t.Fatalf("prompts = %+v", prompts)
	}
}

func TestStatesFiltersByName(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"states":[{"id":"claude 1","tool":"claude","attached":true}]}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", nil)
	states, err := c.States("claude")
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if gotQuery != "name=claude" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(states) != 1 || states[0].ID != "claude 1" || !states[0].Attached {
		t.Fatalf("states = %+v", states)
	}
}

func TestCloseStateEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", nil)
	if err := c.CloseState("claude 1"); err != nil {
		t.Fatalf("CloseState: %v", err)
	}
	if gotPath != "/api/states/claude%201" {
		t.Fatalf("path = %q", gotPath)
	}
}
