package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"aideck/internal/deck"
	"aideck/internal/tool"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	StateID string `json:"state_id,omitempty"`
	URL     string `json:"url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, err *apiError) {
	code := err.Code
	if code == "" {
		code = errorCodeForStatus(err.Status)
	}
	writeJSON(w, err.Status, errorResponse{
		Error:   err.Message,
		Code:    code,
		StateID: err.StateID,
		URL:     err.URL,
	})
}

// errorCodeForStatus supplies the generic code when a handler did not
// set a more specific one.
func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	default:
		return "internal_error"
	}
}

// decodeJSON reads a request body into dst, rejecting unknown fields
// so typos surface as 400s instead of silent defaults.
func decodeJSON(r *http.Request, dst any) *apiError {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// deckError maps the error taxonomy of deck operations onto HTTP.
// Unknown tools and empty target sets are 404s, a missing executable
// is a 412 carrying the install URL, and an empty message is a 400
// the client may downgrade to a warning.
func deckError(err error) *apiError {
	if err == nil {
		return nil
	}
	var notInstalled *tool.NotInstalledError
	switch {
	case errors.As(err, &notInstalled):
		return &apiError{
			Status:  http.StatusPreconditionFailed,
			Message: err.Error(),
			Code:    "tool_not_installed",
			URL:     notInstalled.URL,
		}
	case errors.Is(err, tool.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, Message: err.Error(), Code: "tool_not_found"}
	case errors.Is(err, deck.ErrNoState):
		return &apiError{Status: http.StatusNotFound, Message: err.Error(), Code: "no_state"}
	case errors.Is(err, deck.ErrNothingToSend):
		return &apiError{Status: http.StatusBadRequest, Message: err.Error(), Code: "nothing_to_send"}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}
