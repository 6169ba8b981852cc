// Package state binds a tool, its session, and its terminal surface
// into one addressable unit and keeps the process-wide registry of
// those units.
package state

import (
	"sync"
	"time"

	"aideck/internal/session"
	"aideck/internal/terminal"
	"aideck/internal/tool"
)

// State is one addressable CLI instance.
type State struct {
	ID        string
	Tool      tool.Tool
	CreatedAt time.Time

	mu   sync.RWMutex
	sess *session.Session
	term *terminal.Handle
}

func New(id string, t tool.Tool, sess *session.Session) *State {
	return &State{
		ID:        id,
		Tool:      t,
		CreatedAt: time.Now().UTC(),
		sess:      sess,
	}
}

func (s *State) Session() *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

// SetSession installs a session, the re-attach path.
func (s *State) SetSession(sess *session.Session) {
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

// ClearSession detaches the session from the state and returns it so
// the caller can close it.
func (s *State) ClearSession() *session.Session {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	return sess
}

// Attached reports whether the state holds a session whose process is
// still running.
func (s *State) Attached() bool {
	if s == nil {
		return false
	}
	return s.Session().Alive()
}

func (s *State) Terminal() *terminal.Handle {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.term
}

func (s *State) HasTerminal() bool {
	return s.Terminal() != nil
}

// EnsureTerminal returns the state's terminal handle, building it on
// first use. The handle persists across hide/show and re-attach.
func (s *State) EnsureTerminal(build func() *terminal.Handle) *terminal.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.term == nil && build != nil {
		s.term = build()
	}
	return s.term
}

// Name returns the owning tool's name.
func (s *State) Name() string {
	if s == nil {
		return ""
	}
	return s.Tool.Name
}
