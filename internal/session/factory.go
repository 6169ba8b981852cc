package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"aideck/internal/logging"
	"aideck/internal/metrics"
	"aideck/internal/process"
	"aideck/internal/tmux"
	"aideck/internal/tool"
)

const (
	KindPty  = "pty"
	KindTmux = "tmux"

	stopTimeout = 5 * time.Second
)

type FactoryOptions struct {
	PtyFactory PtyFactory
	Tmux       *tmux.Client
	// TmuxSession is the server session tool windows are created in.
	TmuxSession  string
	Processes    *process.Registry
	Logger       *logging.Logger
	Metrics      *metrics.Registry
	HistoryLines int
	WorkDir      string
	Cols, Rows   uint16
}

// Factory starts sessions on the configured backends.
type Factory struct {
	ptyFactory   PtyFactory
	tmuxClient   *tmux.Client
	tmuxSession  string
	processes    *process.Registry
	logger       *logging.Logger
	metrics      *metrics.Registry
	historyLines int
	workDir      string
	cols, rows   uint16
}

func NewFactory(opts FactoryOptions) *Factory {
	if opts.PtyFactory == nil {
		opts.PtyFactory = DefaultPtyFactory()
	}
	if opts.TmuxSession == "" {
		opts.TmuxSession = "aideck"
	}
	if opts.Processes == nil {
		opts.Processes = process.NewRegistry()
	}
	if opts.HistoryLines <= 0 {
		opts.HistoryLines = DefaultHistoryLines
	}
	return &Factory{
		ptyFactory:   opts.PtyFactory,
		tmuxClient:   opts.Tmux,
		tmuxSession:  opts.TmuxSession,
		processes:    opts.Processes,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		historyLines: opts.HistoryLines,
		workDir:      opts.WorkDir,
		cols:         opts.Cols,
		rows:         opts.Rows,
	}
}

// Start launches the tool on the requested backend kind. An empty kind
// means pty.
func (f *Factory) Start(id string, t tool.Tool, kind string) (*Session, error) {
	switch kind {
	case "", KindPty:
		return f.startPty(id, t)
	case KindTmux:
		return f.startTmux(id, t)
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

func (f *Factory) startPty(id string, t tool.Tool) (*Session, error) {
	req := StartRequest{
		Argv: t.Command,
		Env:  t.Environ(os.Environ()),
		Dir:  f.workDir,
		Cols: f.cols,
		Rows: f.rows,
	}
	p, cmd, err := f.ptyFactory.Start(req)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", t.Name, err)
	}

	backend := NewPtyBackend(p, cmd, PtyBackendOptions{
		OnAir:        t.OnAir,
		HistoryLines: f.historyLines,
	})

	pid := backend.PID()
	f.processes.Register(pid, process.GroupID(pid), t.Name, func(ctx context.Context) error {
		select {
		case <-backend.Done():
			return backend.WaitErr()
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	sess := newSession(id, t, backend, f.logger, f.metrics)
	sess.onClose = func() error {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return f.processes.Stop(ctx, pid)
	}

	f.logInfo("session started", map[string]string{
		"session": id,
		"tool":    t.Name,
		"backend": KindPty,
		"pid":     fmt.Sprintf("%d", pid),
	})
	return sess, nil
}

func (f *Factory) startTmux(id string, t tool.Tool) (*Session, error) {
	client := f.tmuxClient
	if client == nil {
		client = tmux.NewClient()
	}

	exists, err := client.HasSession(f.tmuxSession)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.NewSession(f.tmuxSession); err != nil {
			return nil, err
		}
	}

	target, err := client.NewWindow(f.tmuxSession, WindowName(id), t.Command, envPairs(t), f.workDir)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", t.Name, err)
	}

	pid, err := client.PanePID(target)
	if err != nil {
		pid = 0
	}

	backend := NewTmuxBackend(client, f.tmuxSession, target, pid)
	sess := newSession(id, t, backend, f.logger, f.metrics)

	f.logInfo("session started", map[string]string{
		"session": id,
		"tool":    t.Name,
		"backend": KindTmux,
		"target":  target,
	})
	return sess, nil
}

func (f *Factory) logInfo(msg string, fields map[string]string) {
	if f.logger != nil {
		f.logger.Info(msg, fields)
	}
}

// envPairs flattens a tool's env overrides for tmux new-window -e.
// tmux cannot unset, so explicit unsets become empty values.
func envPairs(t tool.Tool) []string {
	if len(t.Env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(t.Env))
	for key, value := range t.Env {
		if value == nil {
			pairs = append(pairs, key+"=")
			continue
		}
		pairs = append(pairs, key+"="+*value)
	}
	sort.Strings(pairs)
	return pairs
}

// WindowName maps a state id to the tmux window name hosting it.
func WindowName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "aideck"
	}
	return b.String()
}
