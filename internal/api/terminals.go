package api

import (
	"net/http"
	"strings"

	"aideck/internal/deck"
	"aideck/internal/state"
)

// handleTerminal serves /api/terminals/{id}/{action}, the visibility
// and focus verbs for one state's terminal. Every action is
// idempotent; toggle never hides.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) *apiError {
	id, action, apiErr := parseTerminalPath(r.URL.Path)
	if apiErr != nil {
		return apiErr
	}
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	st, ok := s.deck.States().Find(id)
	if !ok {
		return &apiError{Status: http.StatusNotFound, Message: "state not found", Code: "no_state", StateID: id}
	}

	filter := state.ByID(st.ID)
	target := deck.TargetOptions{Filter: &filter}

	var err error
	switch action {
	case "show":
		err = s.deck.Show(target)
	case "hide":
		err = s.deck.Hide(target)
	case "toggle":
		focus := r.URL.Query().Get("focus") == "true"
		err = s.deck.Toggle(deck.ToggleOptions{Filter: &filter, Focus: focus})
	case "focus":
		err = s.deck.Focus(target)
	case "blur":
		err = s.deck.Blur(target)
	}
	if err != nil {
		return deckError(err)
	}
	writeJSON(w, http.StatusOK, summarize(st))
	return nil
}

func parseTerminalPath(path string) (string, string, *apiError) {
	trimmed := strings.TrimPrefix(path, "/api/terminals/")
	if trimmed == path || trimmed == "" {
		return "", "", &apiError{Status: http.StatusNotFound, Message: "state not found"}
	}
	parts := strings.Split(strings.TrimSuffix(trimmed, "/"), "/")
	if len(parts) != 2 {
		return "", "", &apiError{Status: http.StatusNotFound, Message: "unknown terminal endpoint"}
	}
	switch parts[1] {
	case "show", "hide", "toggle", "focus", "blur":
		return parts[0], parts[1], nil
	}
	return "", "", &apiError{Status: http.StatusNotFound, Message: "unknown terminal action"}
}
