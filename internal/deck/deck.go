// Package deck is the orchestration facade: it creates, tracks,
// filters, and closes tool sessions, drives their terminal surfaces,
// and delivers messages through the dispatch loop so every send hits
// one session in call order.
package deck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aideck/internal/dispatch"
	"aideck/internal/event"
	"aideck/internal/logging"
	"aideck/internal/metrics"
	"aideck/internal/render"
	"aideck/internal/session"
	"aideck/internal/state"
	"aideck/internal/terminal"
	"aideck/internal/tmux"
	"aideck/internal/tool"
)

var (
	// ErrNothingToSend marks an empty render result. Callers surface it
	// as a warning, not a failure.
	ErrNothingToSend = errors.New("nothing to send")
	// ErrNoState means a send found no session and had no tool name to
	// create one with.
	ErrNoState = errors.New("no state matches")
)

const (
	// DefaultCreateGrace is how long a just-created session gets to
	// start up before a queued message is delivered, when its backend
	// has no readiness signal.
	DefaultCreateGrace = 500 * time.Millisecond
	// DefaultReadyTimeout caps the wait on a backend readiness signal.
	DefaultReadyTimeout = 2 * time.Second
)

// SelectionProvider supplies the editor-side text selection. Selection
// returns the current selection or "". Leave exits selection mode; it
// is called once a send is committed.
type SelectionProvider interface {
	Selection() string
	Leave()
}

type Options struct {
	Tools    *tool.Registry
	States   *state.Registry
	Factory  *session.Factory
	Loop     *dispatch.Loop
	Renderer *render.Renderer

	Bus     *event.Bus[event.DeckEvent]
	Logger  *logging.Logger
	Metrics *metrics.Registry

	// Selection is optional; the hub daemon runs without one.
	Selection SelectionProvider

	// Tmux and TmuxSession enable re-attach discovery of windows that
	// survived a previous run.
	Tmux        *tmux.Client
	TmuxSession string

	// DefaultTool is used when a send must create a session and the
	// caller named no tool.
	DefaultTool string
	// DefaultBackend is the backend kind for sessions created as a
	// send side effect. Empty means pty.
	DefaultBackend string

	CreateGrace  time.Duration
	ReadyTimeout time.Duration
}

// Deck owns the registry and the dispatch loop. All mutating
// operations run as loop jobs, so registry changes and message
// delivery interleave deterministically.
type Deck struct {
	tools    *tool.Registry
	states   *state.Registry
	factory  *session.Factory
	loop     *dispatch.Loop
	renderer *render.Renderer

	bus     *event.Bus[event.DeckEvent]
	logger  *logging.Logger
	metrics *metrics.Registry

	selection      SelectionProvider
	tmuxClient     *tmux.Client
	tmuxSession    string
	defaultTool    string
	defaultBackend string

	createGrace  time.Duration
	readyTimeout time.Duration

	// lastAlive is only touched from loop jobs.
	lastAlive map[string]bool

	warnOpen        sync.Once
	warnAsk         sync.Once
	warnToggleFocus sync.Once
}

func New(opts Options) *Deck {
	if opts.States == nil {
		opts.States = state.NewRegistry(state.RegistryOptions{
			Bus:     opts.Bus,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		})
	}
	if opts.Loop == nil {
		opts.Loop = dispatch.NewLoop(dispatch.LoopOptions{
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		})
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New(nil)
	}
	if opts.TmuxSession == "" {
		opts.TmuxSession = "aideck"
	}
	if opts.CreateGrace <= 0 {
		opts.CreateGrace = DefaultCreateGrace
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	return &Deck{
		tools:          opts.Tools,
		states:         opts.States,
		factory:        opts.Factory,
		loop:           opts.Loop,
		renderer:       opts.Renderer,
		bus:            opts.Bus,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		selection:      opts.Selection,
		tmuxClient:     opts.Tmux,
		tmuxSession:    opts.TmuxSession,
		defaultTool:    opts.DefaultTool,
		defaultBackend: opts.DefaultBackend,
		createGrace:    opts.CreateGrace,
		readyTimeout:   opts.ReadyTimeout,
		lastAlive:      make(map[string]bool),
	}
}

// Tools exposes the tool registry for API handlers and pickers.
func (d *Deck) Tools() *tool.Registry { return d.tools }

// States exposes the state registry for read-only API queries.
func (d *Deck) States() *state.Registry { return d.states }

// Events exposes the deck event bus.
func (d *Deck) Events() *event.Bus[event.DeckEvent] { return d.bus }

func (d *Deck) buildTerminal(st *state.State) *terminal.Handle {
	return terminal.NewHandle(st.ID, terminal.Options{Bus: d.bus, Logger: d.logger})
}

func (d *Deck) publish(ev event.DeckEvent) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

// Sweep notices sessions that died since the last sweep and publishes
// a detach event for each. States stay registered; a dead session can
// be replaced through re-attach, and only Close removes the state.
func (d *Deck) Sweep() {
	_ = d.loop.Do(func() error {
		next := make(map[string]bool, d.states.Len())
		for _, st := range d.states.List() {
			alive := st.Attached()
			next[st.ID] = alive
			if d.lastAlive[st.ID] && !alive {
				d.logger.Info("session lost", map[string]string{
					"state": st.ID,
					"tool":  st.Tool.Name,
				})
				d.publish(event.NewDeckEvent(event.TypeStateDetached, st.ID, st.Tool.Name))
			}
		}
		d.lastAlive = next
		return nil
	})
}

// StartSweeper runs Sweep on an interval until the returned stop
// function is called.
func (d *Deck) StartSweeper(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				d.Sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// Shutdown empties the registry, stops the loop, and closes every
// session, bounded by ctx.
func (d *Deck) Shutdown(ctx context.Context) error {
	var sessions []*session.Session
	_ = d.loop.Do(func() error {
		for _, st := range d.states.List() {
			removed, ok := d.states.Remove(st.ID)
			if !ok {
				continue
			}
			if sess := removed.ClearSession(); sess != nil {
				sessions = append(sessions, sess)
			}
		}
		return nil
	})
	d.loop.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if err := sess.Close(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sess.ID, err))
				mu.Unlock()
			}
		}(sess)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return ctx.Err()
	}
}
