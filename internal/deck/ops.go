package deck

import (
	"aideck/internal/dispatch"
	"aideck/internal/session"
	"aideck/internal/state"
	"aideck/internal/terminal"
)

// TargetOptions selects the states an operation acts on. Filter wins
// over Name; with neither, the operation targets the first state (or
// all of them under All). Zero matches is a silent no-op for these
// read-style operations.
type TargetOptions struct {
	Name   string
	Filter *state.Filter
	All    bool
}

func (opts TargetOptions) filter() state.Filter {
	if opts.Filter != nil {
		return *opts.Filter
	}
	return state.Named(opts.Name)
}

// Show makes the matching states' terminals visible, creating handles
// on first use.
func (d *Deck) Show(opts TargetOptions) error {
	return d.loop.Do(func() error {
		return dispatch.With(d.states, func(*state.State) error { return nil }, dispatch.WithOptions{
			Filter:        opts.filter(),
			All:           opts.All,
			Show:          true,
			BuildTerminal: d.buildTerminal,
		})
	})
}

// Hide hides the matching states' terminals. States without a terminal
// are skipped; the handles stay around for the next Show.
func (d *Deck) Hide(opts TargetOptions) error {
	return d.loop.Do(func() error {
		return dispatch.With(d.states, func(st *state.State) error {
			if term := st.Terminal(); term != nil {
				term.Hide()
			}
			return nil
		}, dispatch.WithOptions{Filter: opts.filter(), All: opts.All})
	})
}

// ToggleOptions adds the focus request to the usual targeting.
type ToggleOptions struct {
	Name   string
	Filter *state.Filter
	All    bool
	Focus  bool
}

func (opts ToggleOptions) filter() state.Filter {
	if opts.Filter != nil {
		return *opts.Filter
	}
	return state.Named(opts.Name)
}

// Toggle opens and focuses hidden terminals. On a visible terminal it
// flips focus only when Focus is set; it never hides.
func (d *Deck) Toggle(opts ToggleOptions) error {
	return d.loop.Do(func() error {
		return dispatch.With(d.states, func(st *state.State) error {
			term := st.EnsureTerminal(func() *terminal.Handle { return d.buildTerminal(st) })
			term.Toggle(opts.Focus)
			return nil
		}, dispatch.WithOptions{Filter: opts.filter(), All: opts.All})
	})
}

// Focus shows and focuses the matching states' terminals.
func (d *Deck) Focus(opts TargetOptions) error {
	return d.loop.Do(func() error {
		return dispatch.With(d.states, func(st *state.State) error {
			st.EnsureTerminal(func() *terminal.Handle { return d.buildTerminal(st) }).Focus()
			return nil
		}, dispatch.WithOptions{Filter: opts.filter(), All: opts.All})
	})
}

// Blur drops focus from the matching states' terminals.
func (d *Deck) Blur(opts TargetOptions) error {
	return d.loop.Do(func() error {
		return dispatch.With(d.states, func(st *state.State) error {
			if term := st.Terminal(); term != nil {
				term.Blur()
			}
			return nil
		}, dispatch.WithOptions{Filter: opts.filter(), All: opts.All})
	})
}

// Close detaches the matching states: each is removed from the
// registry, its terminal released, and its session shut down in the
// background. Closing an already-removed state is a no-op.
func (d *Deck) Close(opts TargetOptions) error {
	return d.loop.Do(func() error {
		return dispatch.With(d.states, func(st *state.State) error {
			removed, ok := d.states.Remove(st.ID)
			if !ok {
				return nil
			}
			if sess := removed.ClearSession(); sess != nil {
				go d.closeSession(sess)
			}
			return nil
		}, dispatch.WithOptions{Filter: opts.filter(), All: opts.All})
	})
}

func (d *Deck) closeSession(sess *session.Session) {
	if err := sess.Close(); err != nil {
		d.logger.Warn("session close", map[string]string{
			"session": sess.ID,
			"error":   err.Error(),
		})
	}
}
