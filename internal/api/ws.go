package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// controlMessage is the JSON a client sends as a text frame to steer
// the session; anything that does not parse as one is forwarded as
// keystrokes.
type controlMessage struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// handleStateSocket bridges a WebSocket onto a session's byte stream.
// Output travels as binary frames; input arrives as binary frames or
// as text frames, where a resize control message is peeled off first.
func (s *Server) handleStateSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeAPIError(w, &apiError{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
		return
	}
	if !validateToken(r, s.token) {
		writeAPIError(w, &apiError{Status: http.StatusUnauthorized, Message: "invalid or missing token"})
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/ws/terminal/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeAPIError(w, &apiError{Status: http.StatusNotFound, Message: "state not found"})
		return
	}
	st, ok := s.deck.States().Find(id)
	if !ok {
		writeAPIError(w, &apiError{Status: http.StatusNotFound, Message: "state not found", Code: "no_state", StateID: id})
		return
	}
	sess := st.Session()
	if sess == nil || !sess.Alive() {
		writeAPIError(w, &apiError{Status: http.StatusConflict, Message: "state has no live session", Code: "state_detached", StateID: id})
		return
	}
	streamer, ok := sess.Streamer()
	if !ok {
		writeAPIError(w, &apiError{Status: http.StatusConflict, Message: "session output is not streamable", Code: "not_streamable", StateID: id})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.origins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", map[string]string{"state": id, "error": err.Error()})
		return
	}
	defer conn.Close()

	if term := st.Terminal(); term != nil {
		term.ClientAttached()
		defer term.ClientDetached()
	}
	s.logger.Debug("websocket client attached", map[string]string{"state": id})
	defer s.logger.Debug("websocket client detached", map[string]string{"state": id})

	// Subscribe before painting history so output produced during the
	// paint is buffered rather than lost.
	output, cancel := streamer.Subscribe()
	defer cancel()

	if lines, err := sess.SnapshotOutput(200); err == nil && len(lines) > 0 {
		backlog := []byte(strings.Join(lines, "\n") + "\n")
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, backlog); err != nil {
			return
		}
	}

	go func() {
		for chunk := range output {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				conn.Close()
				return
			}
		}
		// Session output ended; tell the client before hanging up.
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
			time.Now().Add(wsWriteTimeout))
		conn.Close()
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch messageType {
		case websocket.TextMessage:
			var control controlMessage
			if json.Unmarshal(data, &control) == nil && control.Type == "resize" {
				if err := streamer.Resize(control.Cols, control.Rows); err != nil {
					s.logger.Debug("resize failed", map[string]string{"state": id, "error": err.Error()})
				}
				continue
			}
			if _, err := streamer.Write(data); err != nil {
				return
			}
		case websocket.BinaryMessage:
			if _, err := streamer.Write(data); err != nil {
				return
			}
		}
	}
}
