package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aideck/internal/deck"
	"aideck/internal/session"
	"aideck/internal/state"
)

type stateSummary struct {
	ID        string           `json:"id"`
	Tool      string           `json:"tool"`
	Backend   string           `json:"backend,omitempty"`
	PID       int              `json:"pid,omitempty"`
	Attached  bool             `json:"attached"`
	Terminal  *terminalSummary `json:"terminal,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type terminalSummary struct {
	Open    bool `json:"open"`
	Focused bool `json:"focused"`
	Clients int  `json:"clients"`
}

type statesResponse struct {
	States []stateSummary `json:"states"`
}

type createStateRequest struct {
	Tool    string `json:"tool"`
	Backend string `json:"backend,omitempty"`
	Show    bool   `json:"show,omitempty"`
	Focus   bool   `json:"focus,omitempty"`
}

type stateOutputResponse struct {
	ID    string   `json:"id"`
	Lines []string `json:"lines"`
}

type stateInputsResponse struct {
	ID     string                `json:"id"`
	Inputs []session.InputRecord `json:"inputs"`
}

func summarize(st *state.State) stateSummary {
	summary := stateSummary{
		ID:        st.ID,
		Tool:      st.Tool.Name,
		Attached:  st.Attached(),
		CreatedAt: st.CreatedAt,
	}
	if sess := st.Session(); sess != nil {
		summary.Backend = sess.Kind()
		summary.PID = sess.PID()
	}
	if term := st.Terminal(); term != nil {
		summary.Terminal = &terminalSummary{
			Open:    term.IsOpen(),
			Focused: term.IsFocused(),
			Clients: term.Clients(),
		}
	}
	return summary
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) *apiError {
	switch r.Method {
	case http.MethodGet:
		return s.listStates(w, r)
	case http.MethodPost:
		return s.createState(w, r)
	default:
		return methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listStates(w http.ResponseWriter, r *http.Request) *apiError {
	filter, apiErr := filterFromQuery(r)
	if apiErr != nil {
		return apiErr
	}
	states := s.deck.States().Get(filter)
	summaries := make([]stateSummary, 0, len(states))
	for _, st := range states {
		summaries = append(summaries, summarize(st))
	}
	writeJSON(w, http.StatusOK, statesResponse{States: summaries})
	return nil
}

func filterFromQuery(r *http.Request) (state.Filter, *apiError) {
	var filter state.Filter
	query := r.URL.Query()
	if name := query.Get("name"); name != "" {
		filter.Name = &name
	}
	for _, key := range []string{"attached", "terminal"} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, &apiError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid %s parameter %q", key, raw)}
		}
		switch key {
		case "attached":
			filter.Attached = &value
		case "terminal":
			filter.Terminal = &value
		}
	}
	return filter, nil
}

func (s *Server) createState(w http.ResponseWriter, r *http.Request) *apiError {
	var req createStateRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	if req.Tool == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "tool is required"}
	}
	st, err := s.deck.New(deck.NewOptions{
		Tool:    req.Tool,
		Backend: req.Backend,
		Show:    req.Show,
		Focus:   req.Focus,
	})
	if err != nil {
		return deckError(err)
	}
	writeJSON(w, http.StatusCreated, summarize(st))
	return nil
}

type selectStateRequest struct {
	Tool    string `json:"tool,omitempty"`
	Backend string `json:"backend,omitempty"`
	Focus   bool   `json:"focus,omitempty"`
}

// handleSelect reuses the first state of the named tool or creates
// one, then raises its terminal. An empty tool selects the first
// registered state.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	var req selectStateRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	st, err := s.deck.Select(deck.SelectOptions{
		Tool:    req.Tool,
		Backend: req.Backend,
		Focus:   req.Focus,
	})
	if err != nil {
		return deckError(err)
	}
	writeJSON(w, http.StatusOK, summarize(st))
	return nil
}

type statePathAction int

const (
	statePathState statePathAction = iota
	statePathOutput
	statePathInput
)

func parseStatePath(path string) (string, statePathAction, *apiError) {
	trimmed := strings.TrimPrefix(path, "/api/states/")
	if trimmed == path {
		return "", statePathState, &apiError{Status: http.StatusNotFound, Message: "state not found"}
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return "", statePathState, &apiError{Status: http.StatusBadRequest, Message: "missing state id"}
	}

	parts := strings.Split(trimmed, "/")
	id := parts[0]
	switch len(parts) {
	case 1:
		return id, statePathState, nil
	case 2:
		switch parts[1] {
		case "output":
			return id, statePathOutput, nil
		case "input":
			return id, statePathInput, nil
		}
	}
	return "", statePathState, &apiError{Status: http.StatusNotFound, Message: "unknown state endpoint"}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) *apiError {
	id, action, apiErr := parseStatePath(r.URL.Path)
	if apiErr != nil {
		return apiErr
	}
	st, ok := s.deck.States().Find(id)
	if !ok {
		return &apiError{Status: http.StatusNotFound, Message: "state not found", Code: "no_state", StateID: id}
	}

	switch action {
	case statePathOutput:
		return s.handleStateOutput(w, r, st)
	case statePathInput:
		return s.handleStateInput(w, r, st)
	default:
		return s.handleStateRoot(w, r, st)
	}
}

func (s *Server) handleStateRoot(w http.ResponseWriter, r *http.Request, st *state.State) *apiError {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, summarize(st))
		return nil
	case http.MethodDelete:
		filter := state.ByID(st.ID)
		if err := s.deck.Close(deck.TargetOptions{Filter: &filter}); err != nil {
			return deckError(err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": st.ID, "status": "closed"})
		return nil
	default:
		return methodNotAllowed(w, "GET, DELETE")
	}
}

func (s *Server) handleStateOutput(w http.ResponseWriter, r *http.Request, st *state.State) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return &apiError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid lines parameter %q", raw)}
		}
		lines = parsed
	}
	output, err := st.Session().SnapshotOutput(lines)
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error(), StateID: st.ID}
	}
	writeJSON(w, http.StatusOK, stateOutputResponse{ID: st.ID, Lines: output})
	return nil
}

// handleStateInput types the request body into the session verbatim,
// bypassing message rendering. The submit parameter presses the
// confirm action afterwards. GET returns the recorded input history
// instead; a detached state has an empty one.
func (s *Server) handleStateInput(w http.ResponseWriter, r *http.Request, st *state.State) *apiError {
	if r.Method == http.MethodGet {
		inputs := st.Session().Inputs()
		if inputs == nil {
			inputs = []session.InputRecord{}
		}
		writeJSON(w, http.StatusOK, stateInputsResponse{ID: st.ID, Inputs: inputs})
		return nil
	}
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "GET, POST")
	}
	sess := st.Session()
	if sess == nil || !sess.Alive() {
		return &apiError{Status: http.StatusConflict, Message: "state has no live session", Code: "state_detached", StateID: st.ID}
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	if len(payload) == 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "empty input", Code: "nothing_to_send", StateID: st.ID}
	}
	if err := sess.Send(string(payload)); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error(), StateID: st.ID}
	}
	if r.URL.Query().Get("submit") == "true" {
		if err := sess.Submit(); err != nil {
			return &apiError{Status: http.StatusInternalServerError, Message: err.Error(), StateID: st.ID}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": st.ID, "status": "sent"})
	return nil
}

