package api

import (
	"net/http"
	"strings"
	"time"

	"aideck/internal/logging"
)

// apiError is the failure result of a handler. Status picks the HTTP
// code, Code the machine-readable error class; StateID and URL travel
// along when the error concerns a specific state or an uninstalled
// tool.
type apiError struct {
	Status  int
	Message string
	Code    string
	StateID string
	URL     string
}

// apiHandler is an http.HandlerFunc that reports failures as values
// instead of writing them inline, so the middleware owns the error
// encoding.
type apiHandler func(http.ResponseWriter, *http.Request) *apiError

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func jsonErrorMiddleware(next apiHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			writeAPIError(w, err)
		}
	})
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			return &apiError{Status: http.StatusUnauthorized, Message: "invalid or missing token"}
		}
		return next(w, r)
	}
}

// restHandler is the standard middleware chain for JSON endpoints:
// security headers outside, error encoding in the middle, token check
// closest to the handler.
func restHandler(token string, next apiHandler) http.Handler {
	return securityHeadersMiddleware(jsonErrorMiddleware(authMiddleware(token, next)))
}

// validateToken accepts the configured token from the Authorization
// header or, for browser transports that cannot set headers (SSE,
// WebSocket), from the token query parameter. An empty configured
// token disables authentication.
func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ") == token
	}
	return r.URL.Query().Get("token") == token
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request", map[string]string{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}

func methodNotAllowed(w http.ResponseWriter, allow string) *apiError {
	w.Header().Set("Allow", allow)
	return &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"}
}
