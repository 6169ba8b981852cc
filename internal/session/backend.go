// Package session runs one assistant CLI per session behind a
// pluggable terminal backend.
package session

import "errors"

var (
	ErrClosed     = errors.New("session closed")
	ErrNotStarted = errors.New("session not started")
)

// Backend drives the terminal hosting a tool process. Implementations
// must tolerate calls after the process died and report that through
// Alive rather than panicking.
type Backend interface {
	// Kind names the backend ("pty" or "tmux").
	Kind() string
	// Send delivers literal text to the tool without confirming it.
	Send(text string) error
	// Submit confirms pending input, the backend's Enter.
	Submit() error
	// Alive reports whether the tool process is still running.
	Alive() bool
	// PID returns the tool process id, or 0 when unknown.
	PID() int
	Close() error
}

// ReadySignaler is implemented by backends that can tell when the tool
// accepts input. Backends without a signal leave callers on the
// configured grace timer.
type ReadySignaler interface {
	Ready() <-chan struct{}
}

// Streamer is implemented by backends that expose a live output stream
// and accept raw input, which the WebSocket attach surface needs.
type Streamer interface {
	Subscribe() (<-chan []byte, func())
	Write(p []byte) (int, error)
	Resize(cols, rows uint16) error
}

// Snapshotter is implemented by backends that can capture recent
// output on demand instead of streaming it.
type Snapshotter interface {
	SnapshotOutput(lines int) ([]string, error)
}

// Attacher is implemented by backends whose terminal lives in an
// external multiplexer; AttachArgv is the command a user runs to reach
// it.
type Attacher interface {
	AttachArgv() []string
}
