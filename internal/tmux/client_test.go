package tmux

import (
	"errors"
	"os/exec"
	"reflect"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls   [][]string
	inputs  [][]byte
	output  []byte
	err     error
	perCall func(args []string) ([]byte, error)
}

func (f *fakeRunner) Run(args []string, input []byte) ([]byte, error) {
	f.calls = append(f.calls, args)
	f.inputs = append(f.inputs, input)
	if f.perCall != nil {
		return f.perCall(args)
	}
	return f.output, f.err
}

func TestNewWindowBuildsArgs(t *testing.T) {
	runner := &fakeRunner{output: []byte("@7\n")}
	client := NewClientWithRunner(runner)

	id, err := client.NewWindow("aideck", "claude 1", []string{"claude", "--continue"}, []string{"FORCE_COLOR=1"}, "/work")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if id != "@7" {
		t.Fatalf("unexpected window id %q", id)
	}

	want := []string{
		"new-window", "-d", "-P", "-F", "#{window_id}",
		"-t", "aideck:",
		"-n", "claude 1",
		"-c", "/work",
		"-e", "FORCE_COLOR=1",
		"--", "claude", "--continue",
	}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", runner.calls[0], want)
	}
}

func TestSendTextIsLiteralAndChunked(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner)

	long := strings.Repeat("x", sendChunkSize+10)
	if err := client.SendText("@1", long); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 chunked calls, got %d", len(runner.calls))
	}
	first := runner.calls[0]
	if first[0] != "send-keys" || first[1] != "-l" {
		t.Fatalf("chunks must use send-keys -l, got %v", first[:2])
	}
	if got := first[len(first)-1]; len(got) != sendChunkSize {
		t.Fatalf("first chunk should be %d bytes, got %d", sendChunkSize, len(got))
	}
	if got := runner.calls[1][len(runner.calls[1])-1]; got != strings.Repeat("x", 10) {
		t.Fatalf("unexpected second chunk %q", got)
	}
}

func TestSendEnterUsesKeyName(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner)

	if err := client.SendEnter("@1"); err != nil {
		t.Fatalf("SendEnter: %v", err)
	}
	want := []string{"send-keys", "-t", "@1", "Enter"}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Fatalf("unexpected args: %v", runner.calls[0])
	}
}

func TestPastePayloadLoadsThenPastes(t *testing.T) {
	runner := &fakeRunner{}
	client := NewClientWithRunner(runner)

	if err := client.PastePayload("@2", []byte("hello")); err != nil {
		t.Fatalf("PastePayload: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(runner.calls))
	}
	if runner.calls[0][0] != "load-buffer" || string(runner.inputs[0]) != "hello" {
		t.Fatalf("first call should load the buffer, got %v", runner.calls[0])
	}
	if runner.calls[1][0] != "paste-buffer" {
		t.Fatalf("second call should paste, got %v", runner.calls[1])
	}
}

func TestPanePID(t *testing.T) {
	runner := &fakeRunner{output: []byte(" 4242 \n")}
	client := NewClientWithRunner(runner)

	pid, err := client.PanePID("@1")
	if err != nil {
		t.Fatalf("PanePID: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("unexpected pid %d", pid)
	}
}

func TestHasSessionExitErrorMeansAbsent(t *testing.T) {
	runner := &fakeRunner{err: &exec.ExitError{}}
	client := NewClientWithRunner(runner)

	ok, err := client.HasSession("missing")
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if ok {
		t.Fatal("exit error should mean session absent")
	}
}

func TestRunWrapsFailureOutput(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom"), output: []byte("no server running\n")}
	client := NewClientWithRunner(runner)

	err := client.KillWindow("@1")
	if err == nil || !strings.Contains(err.Error(), "no server running") {
		t.Fatalf("expected wrapped tmux output, got %v", err)
	}
}

func TestAttachCommand(t *testing.T) {
	inside := AttachCommand("aideck", "@3", true)
	if !reflect.DeepEqual(inside, []string{"tmux", "switch-client", "-t", "@3"}) {
		t.Fatalf("unexpected inside command: %v", inside)
	}
	outside := AttachCommand("aideck", "@3", false)
	if !reflect.DeepEqual(outside, []string{"tmux", "attach-session", "-t", "aideck"}) {
		t.Fatalf("unexpected outside command: %v", outside)
	}
}

func TestWindowAlive(t *testing.T) {
	alive := NewClientWithRunner(&fakeRunner{})
	if !alive.WindowAlive("@1") {
		t.Fatal("expected alive window")
	}
	dead := NewClientWithRunner(&fakeRunner{err: &exec.ExitError{}})
	if dead.WindowAlive("@1") {
		t.Fatal("expected dead window")
	}
}

func TestListWindows(t *testing.T) {
	runner := &fakeRunner{perCall: func(args []string) ([]byte, error) {
		switch args[0] {
		case "has-session":
			return nil, nil
		case "list-windows":
			return []byte("@1\tclaude_1\t100\n@2\tcodex_1\t200\n\n"), nil
		default:
			t.Fatalf("unexpected command %v", args)
			return nil, nil
		}
	}}
	client := NewClientWithRunner(runner)

	windows, err := client.ListWindows("aideck")
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	want := []Window{
		{ID: "@1", Name: "claude_1", PanePID: 100},
		{ID: "@2", Name: "codex_1", PanePID: 200},
	}
	if !reflect.DeepEqual(windows, want) {
		t.Fatalf("ListWindows = %v, want %v", windows, want)
	}
}

func TestListWindowsNoSession(t *testing.T) {
	runner := &fakeRunner{err: &exec.ExitError{}}
	client := NewClientWithRunner(runner)

	windows, err := client.ListWindows("aideck")
	if err != nil || windows != nil {
		t.Fatalf("ListWindows = %v, %v; want nil, nil", windows, err)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "has-session" {
		t.Fatalf("expected only has-session, got %v", runner.calls)
	}
}
