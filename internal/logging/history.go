package logging

import (
	"sync"

	"aideck/internal/ringbuf"
)

// History retains the most recent log entries for the logs API.
type History struct {
	mu      sync.Mutex
	entries *ringbuf.Ring[Entry]
}

func NewHistory(size int) *History {
	return &History{entries: ringbuf.New[Entry](size)}
}

func (h *History) Add(entry Entry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries.Push(entry)
}

func (h *History) List() []Entry {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Snapshot()
}

// Tail returns at most n of the newest entries, oldest first.
func (h *History) Tail(n int) []Entry {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Tail(n)
}
