package deck

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"aideck/internal/logging"
	"aideck/internal/prompt"
	"aideck/internal/render"
	"aideck/internal/session"
	"aideck/internal/state"
	"aideck/internal/tmux"
	"aideck/internal/tool"
)

func codexTool() tool.Tool {
	return tool.Tool{
		Name:    "codex",
		Command: []string{"sh"},
		Match:   []string{"codex"},
		OnAir:   "codex>",
	}
}

type fakeSelection struct {
	mu   sync.Mutex
	text string
	left int
}

func (f *fakeSelection) Selection() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeSelection) Leave() {
	f.mu.Lock()
	f.left++
	f.mu.Unlock()
}

func (f *fakeSelection) leaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.left
}

// scriptRunner answers the tmux commands the deck issues: sessions
// exist, windows are created as @9 with pane pid 4321, and list-windows
// replays the configured snapshot. Every call is recorded.
type scriptRunner struct {
	windows string

	mu  sync.Mutex
	all [][]string
}

func (r *scriptRunner) Run(args []string, input []byte) ([]byte, error) {
	r.mu.Lock()
	r.all = append(r.all, append([]string(nil), args...))
	r.mu.Unlock()

	switch args[0] {
	case "new-window":
		return []byte("@9\n"), nil
	case "display-message":
		return []byte("4321\n"), nil
	case "list-windows":
		return []byte(r.windows), nil
	default:
		return nil, nil
	}
}

func (r *scriptRunner) calls(cmd string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, call := range r.all {
		if len(call) > 0 && call[0] == cmd {
			out = append(out, call)
		}
	}
	return out
}

// barrier flushes the loop past any delivery scheduled for the next
// tick.
func barrier(d *Deck) {
	_ = d.loop.Do(func() error { return nil })
}

func TestSendDeliversAndSubmits(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Send(SendOptions{Name: "claude", Msg: "hello", Submit: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "delivery", func() bool {
		return ptys.pty(0).input() == "hello\n\r"
	})
}

func TestSendNothingToSendWarns(t *testing.T) {
	out := &syncBuffer{}
	d, ptys := newTestDeck(t, Options{Logger: logging.NewWithOutput(logging.LevelDebug, out)})

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Send(SendOptions{Name: "claude"}); !errors.Is(err, ErrNothingToSend) {
		t.Fatalf("Send = %v, want ErrNothingToSend", err)
	}
	barrier(d)
	if got := ptys.pty(0).input(); got != "" {
		t.Fatalf("session received %q, want nothing", got)
	}
	if !strings.Contains(out.String(), "nothing to send") {
		t.Fatal("empty send should log a warning")
	}
}

func TestSendExplicitBlankLine(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Send(SendOptions{Name: "claude", Text: []render.Segment{}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "blank line", func() bool {
		return ptys.pty(0).input() == "\n"
	})
}

func TestSendFirstMatchThenAll(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	for i := 0; i < 2; i++ {
		if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
			t.Fatalf("New: %v", err)
		}
	}

	if err := d.Send(SendOptions{Name: "claude", Msg: "first"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "first-match delivery", func() bool {
		return strings.Contains(ptys.pty(0).input(), "first")
	})
	barrier(d)
	if got := ptys.pty(1).input(); got != "" {
		t.Fatalf("second state received %q without All", got)
	}

	if err := d.Send(SendOptions{Name: "claude", Msg: "both", All: true}); err != nil {
		t.Fatalf("Send all: %v", err)
	}
	waitFor(t, "fan-out delivery", func() bool {
		return strings.Contains(ptys.pty(0).input(), "both") &&
			strings.Contains(ptys.pty(1).input(), "both")
	})
}

func TestSendFilterWins(t *testing.T) {
	d, ptys := newTestDeck(t, Options{
		Tools: tool.NewRegistry(tool.RegistryOptions{Defaults: []tool.Tool{testTool(), codexTool()}}),
	})

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New claude: %v", err)
	}
	if _, err := d.New(NewOptions{Tool: "codex"}); err != nil {
		t.Fatalf("New codex: %v", err)
	}

	f := state.Named("codex")
	if err := d.Send(SendOptions{Name: "claude", Filter: &f, Msg: "pick"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "filtered delivery", func() bool {
		return strings.Contains(ptys.pty(1).input(), "pick")
	})
	if got := ptys.pty(0).input(); got != "" {
		t.Fatalf("name target received %q, filter should win", got)
	}
}

func TestSendCreatesWhenNothingMatches(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	if err := d.Send(SendOptions{Name: "claude", Msg: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "session created", func() bool { return ptys.count() == 1 })
	st, ok := d.States().Find("claude 1")
	if !ok {
		t.Fatal("auto-created state missing")
	}
	if term := st.Terminal(); term == nil || !term.IsOpen() {
		t.Fatal("auto-created session should have a visible terminal")
	}

	// Nothing may land before the tool signals readiness.
	barrier(d)
	if got := ptys.pty(0).input(); got != "" {
		t.Fatalf("payload %q delivered before readiness", got)
	}

	ptys.pty(0).emit("booting...\n" + testOnAir + " \n")
	waitFor(t, "post-ready delivery", func() bool {
		return ptys.pty(0).input() == "hi\n"
	})
}

func TestSendWithoutStateOrToolFails(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	if err := d.Send(SendOptions{Msg: "hi"}); !errors.Is(err, ErrNoState) {
		t.Fatalf("Send = %v, want ErrNoState", err)
	}
	if ptys.count() != 0 {
		t.Fatal("no session may be created without a tool name")
	}
}

func TestSendFallsBackToDefaultTool(t *testing.T) {
	d, ptys := newTestDeck(t, Options{DefaultTool: "claude"})

	if err := d.Send(SendOptions{Msg: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "default-tool session", func() bool { return ptys.count() == 1 })
	ptys.pty(0).emit(testOnAir + "\n")
	waitFor(t, "delivery", func() bool {
		return ptys.pty(0).input() == "hi\n"
	})
}

func TestSendSkipsDeadSession(t *testing.T) {
	out := &syncBuffer{}
	d, ptys := newTestDeck(t, Options{Logger: logging.NewWithOutput(logging.LevelDebug, out)})

	st, err := d.New(NewOptions{Tool: "claude"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.Session().Close(); err != nil {
		t.Fatalf("session close: %v", err)
	}

	if err := d.Send(SendOptions{Name: "claude", Msg: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	barrier(d)
	if got := ptys.pty(0).input(); got != "" {
		t.Fatalf("dead session received %q", got)
	}
	if !strings.Contains(out.String(), "session not alive") {
		t.Fatal("skipped delivery should be logged")
	}
}

func TestDeferredDeliveryDropsRemovedState(t *testing.T) {
	out := &syncBuffer{}
	d, ptys := newTestDeck(t, Options{Logger: logging.NewWithOutput(logging.LevelDebug, out)})

	st, err := d.New(NewOptions{Tool: "claude"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Queue the send and remove its target in the same tick; the
	// deferred delivery must degrade to a no-op.
	err = d.loop.Do(func() error {
		if err := d.send(SendOptions{Name: "claude", Msg: "bye"}); err != nil {
			return err
		}
		_, _ = d.states.Remove(st.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	barrier(d)
	if got := ptys.pty(0).input(); got != "" {
		t.Fatalf("removed state received %q", got)
	}
	if !strings.Contains(out.String(), "state gone") {
		t.Fatal("dropped delivery should be logged")
	}
}

func TestMySendImmediateWhenAttached(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.MySend(SendOptions{Name: "claude", Msg: "mine"}); err != nil {
		t.Fatalf("MySend: %v", err)
	}
	waitFor(t, "immediate delivery", func() bool {
		return ptys.pty(0).input() == "mine\n"
	})
	if ptys.count() != 1 {
		t.Fatalf("pty count = %d, attached send must not create", ptys.count())
	}
}

func TestMySendCreatesAndDeliversOnce(t *testing.T) {
	d, ptys := newTestDeck(t, Options{})

	if err := d.MySend(SendOptions{Name: "claude", Msg: "mine"}); err != nil {
		t.Fatalf("MySend: %v", err)
	}
	waitFor(t, "session created", func() bool { return ptys.count() == 1 })
	barrier(d)
	if got := ptys.pty(0).input(); got != "" {
		t.Fatalf("payload %q delivered before readiness", got)
	}

	ptys.pty(0).emit(testOnAir + "\n")
	waitFor(t, "delivery", func() bool {
		return ptys.pty(0).input() == "mine\n"
	})
	barrier(d)
	if got := ptys.pty(0).input(); got != "mine\n" {
		t.Fatalf("input = %q, want exactly one delivery", got)
	}
	if ptys.count() != 1 {
		t.Fatalf("pty count = %d, want 1", ptys.count())
	}
}

func TestMySendGraceFallback(t *testing.T) {
	runner := &scriptRunner{}
	client := tmux.NewClientWithRunner(runner)
	d, _ := newTestDeck(t, Options{
		Factory: session.NewFactory(session.FactoryOptions{
			PtyFactory:  &fakePtyFactory{},
			Tmux:        client,
			TmuxSession: "aideck",
		}),
		Tmux:           client,
		DefaultBackend: session.KindTmux,
		CreateGrace:    250 * time.Millisecond,
	})

	if err := d.MySend(SendOptions{Name: "claude", Msg: "m"}); err != nil {
		t.Fatalf("MySend: %v", err)
	}
	if n := len(runner.calls("send-keys")); n != 0 {
		t.Fatalf("send-keys issued %d times before the grace delay", n)
	}

	waitFor(t, "grace delivery", func() bool {
		return len(runner.calls("send-keys")) > 0
	})
	call := runner.calls("send-keys")[0]
	if call[1] != "-l" {
		t.Fatalf("send-keys must be literal, got %v", call)
	}
	if got := call[len(call)-1]; got != "m" {
		t.Fatalf("payload = %q, want %q", got, "m")
	}
}

func TestPromptRequiresName(t *testing.T) {
	d, _ := newTestDeck(t, Options{})

	if err := d.Prompt(SendOptions{Msg: "x"}); err == nil || !strings.Contains(err.Error(), "prompt name is required") {
		t.Fatalf("Prompt = %v, want name requirement", err)
	}
	if err := d.MyPrompt(SendOptions{}); err == nil || !strings.Contains(err.Error(), "prompt name is required") {
		t.Fatalf("MyPrompt = %v, want name requirement", err)
	}
}

func TestPromptDeliversLibraryPrompt(t *testing.T) {
	fsys := fstest.MapFS{
		"prompts/review.txt": {Data: []byte("Review the current diff.")},
	}
	d, ptys := newTestDeck(t, Options{
		Renderer: render.New(prompt.NewLibrary(fsys, "prompts", "")),
	})

	names, err := d.Prompts()
	if err != nil {
		t.Fatalf("Prompts: %v", err)
	}
	if len(names) != 1 || names[0] != "review" {
		t.Fatalf("Prompts = %v", names)
	}

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	// The message is ignored once a prompt is named.
	if err := d.Prompt(SendOptions{Name: "claude", Prompt: "review", Msg: "ignored"}); err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	waitFor(t, "prompt delivery", func() bool {
		return ptys.pty(0).input() == "Review the current diff.\n"
	})
}

func TestSendFallsBackToSelection(t *testing.T) {
	sel := &fakeSelection{text: "selected lines"}
	d, ptys := newTestDeck(t, Options{Selection: sel})

	if _, err := d.New(NewOptions{Tool: "claude"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Send(SendOptions{Name: "claude"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "selection delivery", func() bool {
		return ptys.pty(0).input() == "selected lines\n"
	})
	if sel.leaves() != 1 {
		t.Fatalf("selection left %d times, want 1", sel.leaves())
	}
}

func TestRenderInjectsSelection(t *testing.T) {
	sel := &fakeSelection{text: "selected lines"}
	d, _ := newTestDeck(t, Options{Selection: sel})

	result, err := d.Render(render.Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if result.Text != "selected lines\n" {
		t.Fatalf("Text = %q", result.Text)
	}
	if len(result.Segments) != 1 || result.Segments[0].Kind != render.KindSelection {
		t.Fatalf("Segments = %+v", result.Segments)
	}
	if sel.leaves() != 0 {
		t.Fatal("Render must not leave selection mode")
	}

	result, err = d.Render(render.Options{Msg: "typed"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if result.Text != "typed\n" {
		t.Fatalf("explicit message lost to selection: %q", result.Text)
	}
}
