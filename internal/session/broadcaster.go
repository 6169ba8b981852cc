package session

import "sync"

// Broadcaster fans output chunks out to subscribers without blocking
// on slow listeners, and keeps a line history for late attachers.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[uint64]chan []byte
	nextID  uint64
	history *OutputBuffer
	closed  bool
}

func NewBroadcaster(historyLines int) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[uint64]chan []byte),
		history: NewOutputBuffer(historyLines),
	}
}

func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) Broadcast(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.history.Append(chunk)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
}

func (b *Broadcaster) History() *OutputBuffer {
	return b.history
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
