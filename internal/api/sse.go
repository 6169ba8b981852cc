package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"aideck/internal/event"
	"aideck/internal/logging"
)

const (
	sseRetry     = 5 * time.Second
	sseHeartbeat = 15 * time.Second
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// startSSEWriter switches the response into event-stream mode. It
// fails when the ResponseWriter cannot flush, since buffered SSE is
// indistinguishable from a dead stream.
func startSSEWriter(w http.ResponseWriter) (*sseWriter, *apiError) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, &apiError{Status: http.StatusInternalServerError, Message: "streaming unsupported"}
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &sseWriter{w: w, flusher: flusher}
	sw.retry(sseRetry)
	return sw, nil
}

func (sw *sseWriter) retry(d time.Duration) {
	fmt.Fprintf(sw.w, "retry: %d\n\n", d.Milliseconds())
	sw.flusher.Flush()
}

func (sw *sseWriter) comment(text string) {
	fmt.Fprintf(sw.w, ": %s\n\n", text)
	sw.flusher.Flush()
}

func (sw *sseWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", name, data)
	sw.flusher.Flush()
	return nil
}

// streamConfig describes one SSE endpoint: an event name, a live
// subscription, and an optional replay of recent records sent before
// the live feed starts.
type streamConfig[T any] struct {
	name      string
	subscribe func() (<-chan T, func())
	replay    func() []T
}

func serveStream[T any](w http.ResponseWriter, r *http.Request, cfg streamConfig[T]) *apiError {
	// Subscribe before the first byte goes out, so a client that has
	// seen the stream open cannot miss events published right after.
	ch, cancel := cfg.subscribe()
	defer cancel()

	sw, apiErr := startSSEWriter(w)
	if apiErr != nil {
		return apiErr
	}

	if cfg.replay != nil {
		for _, record := range cfg.replay() {
			if err := sw.event(cfg.name, record); err != nil {
				return nil
			}
		}
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-heartbeat.C:
			sw.comment("ping")
		case record, ok := <-ch:
			if !ok {
				return nil
			}
			if err := sw.event(cfg.name, record); err != nil {
				return nil
			}
		}
	}
}

func replayCount(r *http.Request, fallback int) (int, *apiError) {
	raw := r.URL.Query().Get("replay")
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, &apiError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid replay parameter %q", raw)}
	}
	return parsed, nil
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	replay, apiErr := replayCount(r, 0)
	if apiErr != nil {
		return apiErr
	}
	bus := s.deck.Events()
	return serveStream(w, r, streamConfig[event.DeckEvent]{
		name:      "deck",
		subscribe: bus.Subscribe,
		replay: func() []event.DeckEvent {
			if replay == 0 {
				return nil
			}
			return bus.ReplayLast(replay)
		},
	})
}

func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	replay, apiErr := replayCount(r, 0)
	if apiErr != nil {
		return apiErr
	}
	return serveStream(w, r, streamConfig[logging.Entry]{
		name:      "log",
		subscribe: s.logger.Subscribe,
		replay: func() []logging.Entry {
			if replay == 0 {
				return nil
			}
			return s.logger.History().Tail(replay)
		},
	})
}

type logsResponse struct {
	Logs []logging.Entry `json:"logs"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return &apiError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid limit parameter %q", raw)}
		}
		limit = parsed
	}
	entries := s.logger.History().Tail(limit)
	if level := r.URL.Query().Get("level"); level != "" {
		parsed, ok := logging.ParseLevel(level)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: fmt.Sprintf("unknown level %q", level)}
		}
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.Level == parsed {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}
	if entries == nil {
		entries = []logging.Entry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: entries})
	return nil
}
