package deck

import (
	"errors"
	"strings"
	"time"

	"aideck/internal/dispatch"
	"aideck/internal/event"
	"aideck/internal/render"
	"aideck/internal/state"
	"aideck/internal/terminal"
)

// SendOptions names the payload and the targets of one send. Exactly
// one payload source is used: Text, then Prompt, then Msg, then the
// active selection. Name/Filter/All target states the same way the
// terminal operations do.
type SendOptions struct {
	Msg    string
	Prompt string
	Text   []render.Segment

	Name   string
	Filter *state.Filter
	All    bool

	// Submit presses the tool's confirm action after the text.
	Submit bool
	// Focus forwards focus to the terminal after dispatch.
	Focus bool
}

func (opts SendOptions) filter() state.Filter {
	if opts.Filter != nil {
		return *opts.Filter
	}
	return state.Named(opts.Name)
}

// Send renders the message and delivers it to the matching states. A
// render that produces nothing warns and performs zero session calls;
// a result of exactly "\n" is an explicit blank line and proceeds.
// When nothing matches the filter, Send creates a session for the
// named tool (or the configured default) and delivers once that
// session had time to start. The actual write happens on the next
// loop tick, after terminals are visible and selection mode is left.
func (d *Deck) Send(opts SendOptions) error {
	return d.loop.Do(func() error {
		return d.send(opts)
	})
}

// send runs on the loop.
func (d *Deck) send(opts SendOptions) error {
	result, err := d.render(render.Options{Msg: opts.Msg, Prompt: opts.Prompt, Text: opts.Text})
	if err != nil {
		return err
	}
	if result.Text == "" {
		d.logger.Warn("nothing to send", nil)
		d.metrics.IncSendSkipped()
		d.publish(event.NewDeckEvent(event.TypeSendSkipped, "", "").WithDetail("nothing to send"))
		return ErrNothingToSend
	}

	action := func(st *state.State) error {
		if st == nil {
			return d.createAndDeliver(opts, result)
		}
		d.sendToState(st, result, opts.Submit)
		return nil
	}
	return dispatch.With(d.states, action, dispatch.WithOptions{
		Filter:        opts.filter(),
		All:           opts.All,
		Attach:        true,
		Show:          true,
		Focus:         opts.Focus,
		BuildTerminal: d.buildTerminal,
	})
}

// MySend targets the caller's own attached session: deliver to the
// first attached state (narrowed by name) immediately, or create one
// and deliver after it is ready. Exactly one delivery happens either
// way.
func (d *Deck) MySend(opts SendOptions) error {
	return d.loop.Do(func() error {
		result, err := d.render(render.Options{Msg: opts.Msg, Prompt: opts.Prompt, Text: opts.Text})
		if err != nil {
			return err
		}
		if result.Text == "" {
			d.logger.Warn("nothing to send", nil)
			d.metrics.IncSendSkipped()
			d.publish(event.NewDeckEvent(event.TypeSendSkipped, "", "").WithDetail("nothing to send"))
			return ErrNothingToSend
		}

		if st, ok := d.states.First(state.AttachedNamed(opts.Name)); ok {
			d.showAndFocus(st, opts.Focus)
			d.sendToState(st, result, opts.Submit)
			return nil
		}
		return d.createAndDeliver(opts, result)
	})
}

// Prompt is Send with a required prompt name.
func (d *Deck) Prompt(opts SendOptions) error {
	if strings.TrimSpace(opts.Prompt) == "" {
		return errors.New("prompt name is required")
	}
	opts.Msg, opts.Text = "", nil
	return d.Send(opts)
}

// MyPrompt is MySend with a required prompt name.
func (d *Deck) MyPrompt(opts SendOptions) error {
	if strings.TrimSpace(opts.Prompt) == "" {
		return errors.New("prompt name is required")
	}
	opts.Msg, opts.Text = "", nil
	return d.MySend(opts)
}

// Render is the pure half of Send: options in, literal text and typed
// segments out, no session or terminal side effects.
func (d *Deck) Render(opts render.Options) (*render.Result, error) {
	return d.render(opts)
}

// Prompts lists the names the prompt library offers.
func (d *Deck) Prompts() ([]string, error) {
	return d.renderer.PromptNames()
}

func (d *Deck) render(opts render.Options) (*render.Result, error) {
	if opts.Text == nil && opts.Msg == "" && strings.TrimSpace(opts.Prompt) == "" &&
		opts.Selection == "" && d.selection != nil {
		opts.Selection = d.selection.Selection()
	}
	return d.renderer.Render(opts)
}

// createAndDeliver backs the auto-create path of Send and MySend: no
// state matched, so spawn one for the named tool and deliver after the
// readiness signal, or after the grace delay for backends without one.
func (d *Deck) createAndDeliver(opts SendOptions, result *render.Result) error {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = d.defaultTool
	}
	if name == "" {
		d.logger.Warn("no session matches and no tool to create", nil)
		return ErrNoState
	}
	st, err := d.create(NewOptions{
		Tool:    name,
		Backend: d.defaultBackend,
		Show:    true,
		Focus:   opts.Focus,
	})
	if err != nil {
		return err
	}
	d.leaveSelection()
	d.scheduleDelivery(st, result, opts.Submit)
	return nil
}

// sendToState commits the send against an existing state: selection
// mode ends now, the write lands on the next loop tick.
func (d *Deck) sendToState(st *state.State, result *render.Result, submit bool) {
	d.leaveSelection()
	id := st.ID
	d.loop.Defer(func() {
		d.deliver(id, result, submit)
	})
}

// scheduleDelivery hands the payload to a just-created session once it
// is ready: the backend readiness signal when there is one (capped),
// the grace timer otherwise. The delivery job is scheduled exactly
// once and no-ops if the state is gone by the time it runs.
func (d *Deck) scheduleDelivery(st *state.State, result *render.Result, submit bool) {
	id := st.ID
	run := func() {
		d.deliver(id, result, submit)
	}
	if ready := st.Session().Ready(); ready != nil {
		timeout := d.readyTimeout
		go func() {
			select {
			case <-ready:
			case <-time.After(timeout):
			}
			d.loop.Defer(run)
		}()
		return
	}
	d.loop.DeferFor(d.createGrace, run)
}

// deliver runs on the loop. It re-resolves the state so a deferred
// delivery whose target was closed in the meantime degrades to a
// logged no-op.
func (d *Deck) deliver(stateID string, result *render.Result, submit bool) {
	st, ok := d.states.Find(stateID)
	if !ok {
		d.logger.Debug("send dropped, state gone", map[string]string{"state": stateID})
		return
	}
	sess := st.Session()
	if sess == nil || !sess.Alive() {
		d.logger.Warn("send dropped, session not alive", map[string]string{
			"state": st.ID,
			"tool":  st.Tool.Name,
		})
		d.publish(event.NewDeckEvent(event.TypeSendSkipped, st.ID, st.Tool.Name).WithDetail("session not alive"))
		return
	}

	if st.Tool.NeedsFocus {
		if term := st.Terminal(); term != nil {
			term.Focus()
		}
	}

	formatted := render.FormatSegments(result.Segments, st.Tool.Format)
	if !strings.HasSuffix(formatted, "\n") {
		formatted += "\n"
	}
	if err := sess.Send(formatted); err != nil {
		d.logger.Warn("send failed", map[string]string{
			"state": st.ID,
			"tool":  st.Tool.Name,
			"error": err.Error(),
		})
		d.publish(event.NewDeckEvent(event.TypeSendSkipped, st.ID, st.Tool.Name).WithDetail(err.Error()))
		return
	}
	if submit {
		if err := sess.Submit(); err != nil {
			d.logger.Warn("submit failed", map[string]string{
				"state": st.ID,
				"error": err.Error(),
			})
		}
	}
	d.publish(event.NewDeckEvent(event.TypeSendDelivered, st.ID, st.Tool.Name))
}

func (d *Deck) showAndFocus(st *state.State, focus bool) {
	term := st.EnsureTerminal(func() *terminal.Handle { return d.buildTerminal(st) })
	term.Show()
	if focus {
		term.Focus()
	}
}

func (d *Deck) leaveSelection() {
	if d.selection != nil {
		d.selection.Leave()
	}
}
