package session

import (
	"errors"
	"testing"

	"aideck/internal/tool"
)

// fakeBackend is the minimal Backend for session-level tests.
type fakeBackend struct {
	kind    string
	alive   bool
	sent    []string
	submits int
	sendErr error
	closes  int
}

func (f *fakeBackend) Kind() string { return f.kind }

func (f *fakeBackend) Send(text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeBackend) Submit() error {
	f.submits++
	return nil
}

func (f *fakeBackend) Alive() bool  { return f.alive }
func (f *fakeBackend) PID() int     { return 1234 }
func (f *fakeBackend) Close() error { f.closes++; return nil }

// readyBackend adds the optional readiness signal.
type readyBackend struct {
	fakeBackend
	ready chan struct{}
}

func (f *readyBackend) Ready() <-chan struct{} { return f.ready }

func testTool() tool.Tool {
	return tool.Tool{Name: "claude", Command: []string{"claude"}, Match: []string{"claude"}}
}

func TestSessionSendRecordsInput(t *testing.T) {
	backend := &fakeBackend{kind: KindPty, alive: true}
	s := newSession("claude 1", testTool(), backend, nil, nil)

	if err := s.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(backend.sent) != 1 || backend.sent[0] != "hello" {
		t.Fatalf("backend saw %v", backend.sent)
	}

	inputs := s.Inputs()
	if len(inputs) != 1 || inputs[0].Text != "hello" || inputs[0].Submitted {
		t.Fatalf("unexpected input log: %+v", inputs)
	}
}

func TestSessionSendDeadBackend(t *testing.T) {
	backend := &fakeBackend{kind: KindPty, alive: false}
	s := newSession("claude 1", testTool(), backend, nil, nil)

	if err := s.Send("hello"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send = %v, want ErrClosed", err)
	}
	if len(backend.sent) != 0 {
		t.Fatalf("dead backend received input: %v", backend.sent)
	}
	if len(s.Inputs()) != 0 {
		t.Fatal("failed send must not be logged")
	}
}

func TestSessionSendFailureNotLogged(t *testing.T) {
	backend := &fakeBackend{kind: KindPty, alive: true, sendErr: errors.New("pipe broken")}
	s := newSession("claude 1", testTool(), backend, nil, nil)

	if err := s.Send("hello"); err == nil {
		t.Fatal("expected send error")
	}
	if len(s.Inputs()) != 0 {
		t.Fatal("failed send must not be logged")
	}
}

func TestSessionSubmit(t *testing.T) {
	backend := &fakeBackend{kind: KindPty, alive: true}
	s := newSession("claude 1", testTool(), backend, nil, nil)

	if err := s.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if backend.submits != 1 {
		t.Fatalf("submits = %d", backend.submits)
	}
}

func TestSessionReadyCapability(t *testing.T) {
	plain := newSession("a 1", testTool(), &fakeBackend{alive: true}, nil, nil)
	if plain.Ready() != nil {
		t.Fatal("plain backend should have no readiness signal")
	}

	rb := &readyBackend{fakeBackend: fakeBackend{alive: true}, ready: make(chan struct{})}
	withSignal := newSession("a 2", testTool(), rb, nil, nil)
	if withSignal.Ready() == nil {
		t.Fatal("signaling backend lost its readiness channel")
	}
}

func TestSessionStreamerCapability(t *testing.T) {
	s := newSession("a 1", testTool(), &fakeBackend{alive: true}, nil, nil)
	if _, ok := s.Streamer(); ok {
		t.Fatal("plain backend should not stream")
	}
	if argv := s.AttachArgv(); argv != nil {
		t.Fatalf("plain backend should have no attach argv, got %v", argv)
	}
	lines, err := s.SnapshotOutput(10)
	if err != nil || lines != nil {
		t.Fatalf("plain backend snapshot = %v, %v", lines, err)
	}
}

func TestSessionCloseOnce(t *testing.T) {
	backend := &fakeBackend{kind: KindPty, alive: true}
	s := newSession("claude 1", testTool(), backend, nil, nil)

	cleanups := 0
	s.onClose = func() error {
		cleanups++
		return nil
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if backend.closes != 1 || cleanups != 1 {
		t.Fatalf("closes = %d cleanups = %d, want 1 and 1", backend.closes, cleanups)
	}
}

func TestSessionMatchesProcess(t *testing.T) {
	tl := testTool()
	if err := tl.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s := newSession("claude 1", tl, &fakeBackend{alive: true}, nil, nil)

	if !s.MatchesProcess("/usr/local/bin/claude --continue") {
		t.Fatal("expected command line to match")
	}
	if s.MatchesProcess("vim notes.txt") {
		t.Fatal("unrelated command line matched")
	}
}

func TestSessionNilSafety(t *testing.T) {
	var s *Session
	if s.Alive() {
		t.Fatal("nil session alive")
	}
	if err := s.Send("x"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("nil Send = %v, want ErrNotStarted", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("nil Close = %v", err)
	}
}
