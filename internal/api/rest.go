package api

import (
	"net/http"
	"time"

	"aideck/internal/state"
	"aideck/internal/tool"
	"aideck/internal/version"
)

type statusResponse struct {
	States   int    `json:"states"`
	Attached int    `json:"attached"`
	Tools    int    `json:"tools"`
	Uptime   string `json:"uptime"`
}

type toolsResponse struct {
	Tools []tool.Tool `json:"tools"`
}

type promptsResponse struct {
	Prompts []string `json:"prompts"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	writeJSON(w, http.StatusOK, version.Get())
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	attached := true
	writeJSON(w, http.StatusOK, statusResponse{
		States:   s.deck.States().Len(),
		Attached: len(s.deck.States().Get(state.Filter{Attached: &attached})),
		Tools:    len(s.deck.Tools().Names()),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	})
	return nil
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	tools := s.deck.Tools().Visible()
	if r.URL.Query().Get("all") == "true" {
		tools = s.deck.Tools().Snapshot()
	}
	writeJSON(w, http.StatusOK, toolsResponse{Tools: tools})
	return nil
}

func (s *Server) handleToolsReload(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	s.deck.Tools().Reload()
	writeJSON(w, http.StatusOK, toolsResponse{Tools: s.deck.Tools().Snapshot()})
	return nil
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	names, err := s.deck.Prompts()
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, promptsResponse{Prompts: names})
	return nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if s.metrics == nil {
		return &apiError{Status: http.StatusNotFound, Message: "metrics not enabled"}
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.metrics.WritePrometheus(w); err != nil {
		s.logger.Warn("metrics write failed", map[string]string{"error": err.Error()})
	}
	return nil
}
