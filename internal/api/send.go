package api

import (
	"net/http"

	"aideck/internal/deck"
	"aideck/internal/render"
)

type sendRequest struct {
	Msg    string           `json:"msg,omitempty"`
	Prompt string           `json:"prompt,omitempty"`
	Text   []render.Segment `json:"text,omitempty"`

	Name   string `json:"name,omitempty"`
	All    bool   `json:"all,omitempty"`
	Submit bool   `json:"submit,omitempty"`
	Focus  bool   `json:"focus,omitempty"`

	// My prefers the caller's own session, creating one when needed.
	My bool `json:"my,omitempty"`
}

type renderRequest struct {
	Msg       string           `json:"msg,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
	Text      []render.Segment `json:"text,omitempty"`
	Selection string           `json:"selection,omitempty"`
}

type renderResponse struct {
	Text     string           `json:"text"`
	Segments []render.Segment `json:"segments,omitempty"`
}

// handleSend queues a message for delivery. The write itself happens
// on a later loop tick, so a 200 means accepted, not typed.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	var req sendRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}

	opts := deck.SendOptions{
		Msg:    req.Msg,
		Prompt: req.Prompt,
		Text:   req.Text,
		Name:   req.Name,
		All:    req.All,
		Submit: req.Submit,
		Focus:  req.Focus,
	}

	var err error
	switch {
	case req.My && req.Prompt != "":
		err = s.deck.MyPrompt(opts)
	case req.My:
		err = s.deck.MySend(opts)
	case req.Prompt != "":
		err = s.deck.Prompt(opts)
	default:
		err = s.deck.Send(opts)
	}
	if err != nil {
		return deckError(err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
	return nil
}

// handleRender previews a message without touching any session.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	var req renderRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		return apiErr
	}
	result, err := s.deck.Render(render.Options{
		Msg:       req.Msg,
		Prompt:    req.Prompt,
		Text:      req.Text,
		Selection: req.Selection,
	})
	if err != nil {
		return deckError(err)
	}
	writeJSON(w, http.StatusOK, renderResponse{Text: result.Text, Segments: result.Segments})
	return nil
}
