package event

import "time"

// Deck event types published on the hub bus.
const (
	TypeStateCreated    = "state.created"
	TypeStateClosed     = "state.closed"
	TypeStateDetached   = "state.detached"
	TypeTerminalShown   = "terminal.shown"
	TypeTerminalHidden  = "terminal.hidden"
	TypeTerminalFocused = "terminal.focused"
	TypeTerminalBlurred = "terminal.blurred"
	TypeSendDelivered   = "send.delivered"
	TypeSendSkipped     = "send.skipped"
	TypeToolsReloaded   = "tools.reloaded"
	TypeWatchError      = "watch.error"
)

// DeckEvent describes a state, terminal, or registry change.
type DeckEvent struct {
	Type    string    `json:"type"`
	StateID string    `json:"state_id,omitempty"`
	Tool    string    `json:"tool,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Time    time.Time `json:"time"`
}

func NewDeckEvent(eventType, stateID, tool string) DeckEvent {
	return DeckEvent{
		Type:    eventType,
		StateID: stateID,
		Tool:    tool,
		Time:    time.Now().UTC(),
	}
}

func (e DeckEvent) WithDetail(detail string) DeckEvent {
	e.Detail = detail
	return e
}
