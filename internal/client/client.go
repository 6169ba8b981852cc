// Package client is the thin HTTP client the CLIs use to talk to a
// running hub. It mirrors the wire types it needs instead of importing
// the server handlers.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"aideck/internal/render"
)

// HTTPError carries the decoded error payload of a non-2xx response.
// Code distinguishes expected conditions (no_state, tool_not_found,
// nothing_to_send) from genuine failures.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	URL        string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// HasCode reports whether err is an HTTPError with the given code.
func HasCode(err error, code string) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == code
}

// ToolInfo is the subset of a tool definition the CLIs display.
type ToolInfo struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// StateInfo is the summary the hub returns for one state.
type StateInfo struct {
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	Backend  string `json:"backend,omitempty"`
	Attached bool   `json:"attached"`
}

// SendRequest mirrors the /api/send payload.
type SendRequest struct {
	Msg    string           `json:"msg,omitempty"`
	Prompt string           `json:"prompt,omitempty"`
	Text   []render.Segment `json:"text,omitempty"`

	Name   string `json:"name,omitempty"`
	All    bool   `json:"all,omitempty"`
	Submit bool   `json:"submit,omitempty"`
	Focus  bool   `json:"focus,omitempty"`
	My     bool   `json:"my,omitempty"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}, nil
}

func (c *Client) Health() error {
	return c.get("/api/healthz", nil)
}

func (c *Client) Version() (map[string]string, error) {
	var info map[string]string
	if err := c.get("/api/version", &info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) Tools() ([]ToolInfo, error) {
	var payload struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.get("/api/tools", &payload); err != nil {
		return nil, err
	}
	return payload.Tools, nil
}

func (c *Client) Prompts() ([]string, error) {
	var payload struct {
		Prompts []string `json:"prompts"`
	}
	if err := c.get("/api/prompts", &payload); err != nil {
		return nil, err
	}
	return payload.Prompts, nil
}

// States lists registered states, optionally narrowed to one tool.
func (c *Client) States(name string) ([]StateInfo, error) {
	path := "/api/states"
	if name != "" {
		path += "?name=" + url.QueryEscape(name)
	}
	var payload struct {
		States []StateInfo `json:"states"`
	}
	if err := c.get(path, &payload); err != nil {
		return nil, err
	}
	return payload.States, nil
}

func (c *Client) CreateState(tool, backend string, focus bool) (StateInfo, error) {
	body := map[string]any{"tool": tool}
	if backend != "" {
		body["backend"] = backend
	}
	if focus {
		body["show"] = true
		body["focus"] = true
	}
	var created StateInfo
	if err := c.post("/api/states", body, &created); err != nil {
		return StateInfo{}, err
	}
	return created, nil
}

func (c *Client) CloseState(id string) error {
	request, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/states/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("build close request: %w", err)
	}
	return c.do(request, nil)
}

// Select reuses or creates a state for the tool and raises its
// terminal.
func (c *Client) Select(tool string, focus bool) (StateInfo, error) {
	body := map[string]any{}
	if tool != "" {
		body["tool"] = tool
	}
	if focus {
		body["focus"] = true
	}
	var selected StateInfo
	if err := c.post("/api/select", body, &selected); err != nil {
		return StateInfo{}, err
	}
	return selected, nil
}

func (c *Client) Send(req SendRequest) error {
	return c.post("/api/send", req, nil)
}

func (c *Client) get(path string, out any) error {
	request, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(request, out)
}

func (c *Client) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	request, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	return c.do(request, out)
}

func (c *Client) do(request *http.Request, out any) error {
	if token := strings.TrimSpace(c.token); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return readError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readError(response *http.Response) error {
	httpErr := &HTTPError{StatusCode: response.StatusCode, Message: response.Status}
	body, _ := io.ReadAll(response.Body)
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		httpErr.Message = payload.Error
		httpErr.Code = payload.Code
		httpErr.URL = payload.URL
	} else if text := strings.TrimSpace(string(body)); text != "" {
		httpErr.Message = text
	}
	return httpErr
}
