// Package terminal tracks the UI surface of a session: whether it is
// shown, focused, and how many clients are attached. The handle out-
// lives hide/show cycles; only release tears it down.
package terminal

import (
	"sync"

	"aideck/internal/event"
	"aideck/internal/logging"
)

// Handle is the server-side record of one session's terminal surface.
// All transitions are idempotent.
type Handle struct {
	mu       sync.Mutex
	stateID  string
	open     bool
	visible  bool
	focused  bool
	released bool
	clients  int

	bus    *event.Bus[event.DeckEvent]
	logger *logging.Logger
}

type Options struct {
	Bus    *event.Bus[event.DeckEvent]
	Logger *logging.Logger
}

func NewHandle(stateID string, opts Options) *Handle {
	return &Handle{
		stateID: stateID,
		bus:     opts.Bus,
		logger:  opts.Logger,
	}
}

// Show makes the surface visible. Showing a visible terminal is a
// no-op.
func (h *Handle) Show() {
	h.mu.Lock()
	if h.released || h.visible {
		h.mu.Unlock()
		return
	}
	h.open = true
	h.visible = true
	h.mu.Unlock()
	h.publish(event.TypeTerminalShown)
}

// Hide makes the surface invisible and drops focus. The handle itself
// persists; a later Show restores it.
func (h *Handle) Hide() {
	h.mu.Lock()
	if !h.visible {
		h.mu.Unlock()
		return
	}
	h.visible = false
	wasFocused := h.focused
	h.focused = false
	h.mu.Unlock()
	if wasFocused {
		h.publish(event.TypeTerminalBlurred)
	}
	h.publish(event.TypeTerminalHidden)
}

// Focus shows the surface if needed and directs input to it.
func (h *Handle) Focus() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	shown := false
	if !h.visible {
		h.open = true
		h.visible = true
		shown = true
	}
	focused := false
	if !h.focused {
		h.focused = true
		focused = true
	}
	h.mu.Unlock()
	if shown {
		h.publish(event.TypeTerminalShown)
	}
	if focused {
		h.publish(event.TypeTerminalFocused)
	}
}

// Blur drops focus without hiding.
func (h *Handle) Blur() {
	h.mu.Lock()
	if !h.focused {
		h.mu.Unlock()
		return
	}
	h.focused = false
	h.mu.Unlock()
	h.publish(event.TypeTerminalBlurred)
}

// Toggle opens and focuses a hidden surface. On a visible surface it
// flips focus only when the caller asks for focus; otherwise it leaves
// the surface exactly as it is. Toggle never hides.
func (h *Handle) Toggle(wantFocus bool) {
	h.mu.Lock()
	visible := h.visible
	focused := h.focused
	h.mu.Unlock()

	if !visible {
		h.Show()
		h.Focus()
		return
	}
	if !wantFocus {
		return
	}
	if focused {
		h.Blur()
	} else {
		h.Focus()
	}
}

func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

func (h *Handle) IsFocused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.focused
}

// Opened reports whether the surface was ever shown and not yet
// released; it stays true while hidden.
func (h *Handle) Opened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open && !h.released
}

// ClientAttached records one more live attach client. Attaching opens
// the surface.
func (h *Handle) ClientAttached() {
	h.mu.Lock()
	h.clients++
	h.mu.Unlock()
	h.Show()
}

// ClientDetached records a client hangup. Losing the last client does
// not hide the surface; only an explicit Hide does.
func (h *Handle) ClientDetached() {
	h.mu.Lock()
	if h.clients > 0 {
		h.clients--
	}
	h.mu.Unlock()
}

func (h *Handle) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// Release tears the surface down for good when its state is removed.
// Safe to call twice.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.Hide()
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.open = false
	h.mu.Unlock()
}

func (h *Handle) publish(eventType string) {
	if h.logger != nil {
		h.logger.Debug("terminal "+shortType(eventType), map[string]string{
			"state": h.stateID,
		})
	}
	if h.bus != nil {
		h.bus.Publish(event.NewDeckEvent(eventType, h.stateID, ""))
	}
}

func shortType(eventType string) string {
	for i := len(eventType) - 1; i >= 0; i-- {
		if eventType[i] == '.' {
			return eventType[i+1:]
		}
	}
	return eventType
}
