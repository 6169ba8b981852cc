// Package api exposes the hub over HTTP: a JSON REST surface for the
// deck operations, SSE streams for events and logs, and a WebSocket
// bridge onto live sessions.
package api

import (
	"net/http"
	"time"

	"aideck/internal/deck"
	"aideck/internal/logging"
	"aideck/internal/metrics"
)

// Options configures the HTTP surface. Deck is required; everything
// else degrades gracefully when absent.
type Options struct {
	Deck    *deck.Deck
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// Token guards every endpoint except the health probe. Empty
	// disables authentication.
	Token string
	// AllowedOrigins limits WebSocket upgrades from browsers. Empty
	// rejects all cross-origin upgrades; "*" allows any.
	AllowedOrigins []string
}

// Server wires the deck into HTTP handlers. It carries no connection
// state of its own; register it on a mux and hand that to http.Server.
type Server struct {
	deck    *deck.Deck
	logger  *logging.Logger
	metrics *metrics.Registry
	token   string
	origins []string
	started time.Time
}

func NewServer(opts Options) *Server {
	return &Server{
		deck:    opts.Deck,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		token:   opts.Token,
		origins: opts.AllowedOrigins,
		started: time.Now(),
	}
}

// Register mounts every route on mux. Paths with a trailing slash
// dispatch on the remaining segments inside the handler.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/api/healthz", securityHeadersMiddleware(http.HandlerFunc(s.handleHealthz)))
	mux.Handle("/api/version", s.rest(s.handleVersion))
	mux.Handle("/api/status", s.rest(s.handleStatus))
	mux.Handle("/api/tools", s.rest(s.handleTools))
	mux.Handle("/api/tools/reload", s.rest(s.handleToolsReload))
	mux.Handle("/api/prompts", s.rest(s.handlePrompts))
	mux.Handle("/api/states", s.rest(s.handleStates))
	mux.Handle("/api/states/", s.rest(s.handleState))
	mux.Handle("/api/terminals/", s.rest(s.handleTerminal))
	mux.Handle("/api/select", s.rest(s.handleSelect))
	mux.Handle("/api/send", s.rest(s.handleSend))
	mux.Handle("/api/render", s.rest(s.handleRender))
	mux.Handle("/api/logs", s.rest(s.handleLogs))
	mux.Handle("/api/logs/stream", s.rest(s.handleLogStream))
	mux.Handle("/api/events", s.rest(s.handleEventStream))
	mux.Handle("/metrics", s.rest(s.handleMetrics))
	mux.Handle("/ws/terminal/", securityHeadersMiddleware(http.HandlerFunc(s.handleStateSocket)))
}

// Handler returns the complete HTTP surface with request logging
// applied, ready for http.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return loggingMiddleware(s.logger, mux)
}

func (s *Server) rest(h apiHandler) http.Handler {
	return restHandler(s.token, h)
}
