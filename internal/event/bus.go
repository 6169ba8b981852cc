// Package event provides an in-process publish/subscribe bus. Publishers
// never block: a subscriber whose channel is full loses the event and the
// bus tracks the drop.
package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"aideck/internal/logging"
	"aideck/internal/ringbuf"
)

const (
	defaultSubscriberBuffer  = 128
	defaultDropWarnInterval  = 30 * time.Second
	defaultDropWarnThreshold = 0.01
)

type Options struct {
	// Name labels the bus in log lines.
	Name string
	// SubscriberBuffer is the per-subscriber channel capacity.
	SubscriberBuffer int
	// History keeps the most recent events for ReplayLast. Zero disables.
	History int
	Logger  *logging.Logger
}

type subscription[T any] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription[T]
	nextID uint64
	closed bool

	name    string
	bufSize int
	history *ringbuf.Ring[T]
	logger  *logging.Logger

	published atomic.Uint64
	dropped   atomic.Uint64

	warnMu   sync.Mutex
	lastWarn time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBus[T any](ctx context.Context, opts Options) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	busCtx, cancel := context.WithCancel(ctx)
	bus := &Bus[T]{
		subs:    make(map[uint64]*subscription[T]),
		name:    opts.Name,
		bufSize: opts.SubscriberBuffer,
		logger:  opts.Logger,
		ctx:     busCtx,
		cancel:  cancel,
	}
	if opts.History > 0 {
		bus.history = ringbuf.New[T](opts.History)
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

// SubscribeFiltered registers a subscriber that only receives events the
// filter admits. A nil filter admits everything.
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		return nil, func() {}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}
	b.nextID++
	sub := &subscription[T]{
		id:     b.nextID,
		ch:     make(chan T, b.bufSize),
		filter: filter,
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[sub.id]; ok {
			delete(b.subs, sub.id)
			close(existing.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*subscription[T], 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	b.published.Add(1)
	if b.history != nil {
		b.mu.Lock()
		b.history.Push(event)
		b.mu.Unlock()
	}

	for _, sub := range targets {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		case <-b.ctx.Done():
			return
		default:
			b.dropped.Add(1)
			b.maybeWarnDrops()
		}
	}
}

// ReplayLast returns up to n of the most recently published events,
// oldest first. Requires Options.History > 0.
func (b *Bus[T]) ReplayLast(n int) []T {
	if b == nil || b.history == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.Tail(n)
}

func (b *Bus[T]) Stats() (published, dropped uint64) {
	if b == nil {
		return 0, 0
	}
	return b.published.Load(), b.dropped.Load()
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()
	b.cancel()
}

func (b *Bus[T]) maybeWarnDrops() {
	if b.logger == nil {
		return
	}
	published := b.published.Load()
	dropped := b.dropped.Load()
	if published == 0 || float64(dropped)/float64(published) < defaultDropWarnThreshold {
		return
	}

	b.warnMu.Lock()
	defer b.warnMu.Unlock()
	now := time.Now()
	if now.Sub(b.lastWarn) < defaultDropWarnInterval {
		return
	}
	b.lastWarn = now
	b.logger.Warn("event bus dropping events", map[string]string{
		"bus":       b.name,
		"published": strconv.FormatUint(published, 10),
		"dropped":   strconv.FormatUint(dropped, 10),
	})
}
