package session

import (
	"strings"
	"sync"

	"aideck/internal/tmux"
)

// TmuxBackend hosts the tool in a window of an external tmux server.
// There is no output stream and no readiness signal; callers rely on
// capture snapshots and the grace timer.
type TmuxBackend struct {
	client  *tmux.Client
	session string
	target  string
	pid     int

	mu     sync.Mutex
	closed bool
}

func NewTmuxBackend(client *tmux.Client, sessionName, target string, pid int) *TmuxBackend {
	return &TmuxBackend{
		client:  client,
		session: sessionName,
		target:  target,
		pid:     pid,
	}
}

func (b *TmuxBackend) Kind() string { return "tmux" }

// Target returns the tmux window target hosting the tool.
func (b *TmuxBackend) Target() string { return b.target }

func (b *TmuxBackend) Send(text string) error {
	if b.isClosed() {
		return ErrClosed
	}
	// tmux interprets a trailing newline in send-keys -l as a literal
	// CR, which would submit; strip it and let Submit press Enter.
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return b.client.SendText(b.target, text)
}

func (b *TmuxBackend) Submit() error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.client.SendEnter(b.target)
}

func (b *TmuxBackend) Alive() bool {
	if b.isClosed() {
		return false
	}
	return b.client.WindowAlive(b.target)
}

func (b *TmuxBackend) PID() int { return b.pid }

func (b *TmuxBackend) SnapshotOutput(lines int) ([]string, error) {
	output, err := b.client.CapturePane(b.target, lines)
	if err != nil {
		return nil, err
	}
	text := strings.TrimRight(string(output), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (b *TmuxBackend) Resize(cols, rows uint16) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.client.ResizeWindow(b.target, cols, rows)
}

// Focus selects the window inside the tmux server.
func (b *TmuxBackend) Focus() error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.client.SelectWindow(b.target)
}

func (b *TmuxBackend) AttachArgv() []string {
	return tmux.AttachCommand(b.session, b.target, tmux.InsideTmux())
}

func (b *TmuxBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if !b.client.WindowAlive(b.target) {
		return nil
	}
	return b.client.KillWindow(b.target)
}

func (b *TmuxBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
