package deck

import (
	"errors"

	"aideck/internal/state"
	"aideck/internal/terminal"
	"aideck/internal/tool"
)

// NewOptions configures session creation. Backend "" means pty.
type NewOptions struct {
	Tool    string
	Backend string
	Show    bool
	Focus   bool
}

// New resolves the tool, verifies its executable is installed, spawns
// a session, and registers the state. The executable check runs before
// any spawn attempt so a missing binary never leaves a dead session
// behind; the returned error carries the install URL when one is
// configured.
func (d *Deck) New(opts NewOptions) (*state.State, error) {
	var st *state.State
	err := d.loop.Do(func() error {
		var err error
		st, err = d.create(opts)
		return err
	})
	return st, err
}

// create runs on the loop.
func (d *Deck) create(opts NewOptions) (*state.State, error) {
	t, err := d.tools.Resolve(opts.Tool)
	if err != nil {
		d.logger.Error("unknown tool", map[string]string{"tool": opts.Tool})
		return nil, err
	}
	if err := tool.Installed(t); err != nil {
		fields := map[string]string{"tool": t.Name}
		var missing *tool.NotInstalledError
		if errors.As(err, &missing) && missing.URL != "" {
			fields["url"] = missing.URL
		}
		d.logger.Error("tool not installed", fields)
		return nil, err
	}

	id, err := d.states.NewID(t.Name)
	if err != nil {
		return nil, err
	}
	sess, err := d.factory.Start(id, t, opts.Backend)
	if err != nil {
		return nil, err
	}
	st := state.New(id, t, sess)
	if err := d.states.Add(st); err != nil {
		go d.closeSession(sess)
		return nil, err
	}

	if opts.Show || opts.Focus {
		term := st.EnsureTerminal(func() *terminal.Handle { return d.buildTerminal(st) })
		if opts.Focus {
			term.Focus()
		} else {
			term.Show()
		}
	}
	return st, nil
}

// SelectOptions picks or creates the session for a tool. This is the
// target of the interactive picker: the picker resolves the name, the
// deck attaches to it.
type SelectOptions struct {
	Tool    string
	Backend string
	Focus   bool
}

// Select reuses the first state of the named tool, creating one if
// none exists, and brings its terminal up. An empty name selects the
// first registered state.
func (d *Deck) Select(opts SelectOptions) (*state.State, error) {
	var st *state.State
	err := d.loop.Do(func() error {
		if existing, ok := d.states.First(state.Named(opts.Tool)); ok {
			st = existing
			term := st.EnsureTerminal(func() *terminal.Handle { return d.buildTerminal(st) })
			term.Show()
			if opts.Focus {
				term.Focus()
			}
			return nil
		}
		var err error
		st, err = d.create(NewOptions{
			Tool:    opts.Tool,
			Backend: opts.Backend,
			Show:    true,
			Focus:   opts.Focus,
		})
		return err
	})
	return st, err
}
