package dispatch

import (
	"errors"
	"fmt"

	"aideck/internal/state"
	"aideck/internal/terminal"
)

// Action is applied to one resolved state. A nil state signals that
// nothing matched and the action may create what it needs; With itself
// never spawns anything.
type Action func(st *state.State) error

// WithOptions steers target resolution and terminal side effects.
type WithOptions struct {
	Filter state.Filter
	// All applies the action to every match instead of the first.
	All bool
	// Attach invokes the action once with a nil state when nothing
	// matched. Without it, zero matches is a silent no-op.
	Attach bool
	// Show ensures each resolved state has a visible terminal before
	// the action runs.
	Show bool
	// Focus forwards focus to the terminal after the action.
	Focus bool
	// BuildTerminal constructs a state's terminal handle on first
	// show. Required when Show is set.
	BuildTerminal func(*state.State) *terminal.Handle
}

// With resolves states through the registry and applies the action.
// Under All, every invocation is isolated: a panic or error in one
// does not stop the rest, and the errors come back joined.
func With(reg *state.Registry, action Action, opts WithOptions) error {
	if action == nil {
		return errors.New("action is required")
	}

	candidates := reg.Get(opts.Filter)
	if len(candidates) == 0 {
		if opts.Attach {
			return invokeAction(action, nil)
		}
		return nil
	}
	if !opts.All {
		candidates = candidates[:1]
	}

	var errs []error
	for _, st := range candidates {
		if opts.Show {
			showTerminal(st, opts.BuildTerminal)
		}
		if err := invokeAction(action, st); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.ID, err))
		}
		if opts.Focus {
			if term := st.Terminal(); term != nil {
				term.Focus()
			}
		}
	}
	return errors.Join(errs...)
}

func showTerminal(st *state.State, build func(*state.State) *terminal.Handle) {
	term := st.Terminal()
	if term == nil && build != nil {
		term = st.EnsureTerminal(func() *terminal.Handle {
			return build(st)
		})
	}
	if term != nil {
		term.Show()
	}
}

func invokeAction(action Action, st *state.State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action(st)
}
