package session

import (
	"sync"
	"time"

	"aideck/internal/logging"
	"aideck/internal/metrics"
	"aideck/internal/tool"
)

// Session is one running tool process behind a Backend.
type Session struct {
	ID        string
	Tool      tool.Tool
	CreatedAt time.Time

	backend Backend
	inputs  *InputLog
	logger  *logging.Logger
	metrics *metrics.Registry

	closing  sync.Once
	closeErr error
	onClose  func() error
}

func newSession(id string, t tool.Tool, backend Backend, logger *logging.Logger, reg *metrics.Registry) *Session {
	return &Session{
		ID:        id,
		Tool:      t,
		CreatedAt: time.Now().UTC(),
		backend:   backend,
		inputs:    NewInputLog(0),
		logger:    logger,
		metrics:   reg,
	}
}

// Adopt wraps an already-running backend in a Session, the re-attach
// path after a hub restart.
func Adopt(id string, t tool.Tool, backend Backend, logger *logging.Logger, reg *metrics.Registry) *Session {
	return newSession(id, t, backend, logger, reg)
}

func (s *Session) Kind() string {
	if s == nil || s.backend == nil {
		return ""
	}
	return s.backend.Kind()
}

func (s *Session) Alive() bool {
	if s == nil || s.backend == nil {
		return false
	}
	return s.backend.Alive()
}

func (s *Session) PID() int {
	if s == nil || s.backend == nil {
		return 0
	}
	return s.backend.PID()
}

// Send delivers literal text without confirming it.
func (s *Session) Send(text string) error {
	if s == nil || s.backend == nil {
		return ErrNotStarted
	}
	if !s.backend.Alive() {
		return ErrClosed
	}
	err := s.backend.Send(text)
	s.metrics.RecordSend(s.Tool.Name, len(text), err)
	if err == nil {
		s.inputs.Record(text, false)
	}
	return err
}

// Submit confirms pending input.
func (s *Session) Submit() error {
	if s == nil || s.backend == nil {
		return ErrNotStarted
	}
	if !s.backend.Alive() {
		return ErrClosed
	}
	return s.backend.Submit()
}

// Ready returns the backend's readiness signal, or nil when the
// backend has none and the caller should fall back to a grace timer.
func (s *Session) Ready() <-chan struct{} {
	if s == nil {
		return nil
	}
	if signaler, ok := s.backend.(ReadySignaler); ok {
		return signaler.Ready()
	}
	return nil
}

// Streamer exposes the live output stream when the backend has one.
func (s *Session) Streamer() (Streamer, bool) {
	if s == nil {
		return nil, false
	}
	streamer, ok := s.backend.(Streamer)
	return streamer, ok
}

// SnapshotOutput returns recent output lines, newest last. Backends
// without capture support return nothing.
func (s *Session) SnapshotOutput(lines int) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	if snap, ok := s.backend.(Snapshotter); ok {
		return snap.SnapshotOutput(lines)
	}
	return nil, nil
}

// AttachArgv returns the command that reaches an externally hosted
// terminal, or nil for backends the hub streams itself.
func (s *Session) AttachArgv() []string {
	if s == nil {
		return nil
	}
	if attacher, ok := s.backend.(Attacher); ok {
		return attacher.AttachArgv()
	}
	return nil
}

// MatchesProcess reports whether a process command line belongs to
// this session's tool.
func (s *Session) MatchesProcess(cmdline string) bool {
	if s == nil {
		return false
	}
	return s.Tool.MatchesCommandLine(cmdline)
}

func (s *Session) Inputs() []InputRecord {
	if s == nil {
		return nil
	}
	return s.inputs.List()
}

func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closing.Do(func() {
		if s.backend != nil {
			s.closeErr = s.backend.Close()
		}
		if s.onClose != nil {
			if err := s.onClose(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if s.logger != nil {
			s.logger.Info("session closed", map[string]string{
				"session": s.ID,
				"tool":    s.Tool.Name,
			})
		}
	})
	return s.closeErr
}
