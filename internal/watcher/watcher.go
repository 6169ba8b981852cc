// Package watcher delivers debounced filesystem change notifications.
// A failed fsnotify watcher is rebuilt with backoff so a transient
// inotify error does not permanently disable hot reload.
package watcher

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"aideck/internal/logging"
)

const (
	defaultDebounce    = 100 * time.Millisecond
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

var ErrClosed = errors.New("watcher closed")

// Event is one debounced filesystem change.
type Event struct {
	Path      string
	Op        fsnotify.Op
	Timestamp time.Time
}

// Handle releases one registration.
type Handle interface {
	Close() error
}

type Options struct {
	Logger *logging.Logger
	// Debounce is how long a path must stay quiet before its pending
	// event is delivered. Later events reset the timer and replace the
	// pending one.
	Debounce time.Duration
}

type callbackEntry struct {
	id       uint64
	callback func(Event)
}

type debounceEntry struct {
	timer *time.Timer
	event Event
}

// Watcher multiplexes any number of registrations onto one fsnotify
// watcher. Watching a directory reports changes to its direct entries.
type Watcher struct {
	mutex     sync.Mutex
	watcher   *fsnotify.Watcher
	callbacks map[string][]callbackEntry
	debounce  map[string]debounceEntry
	duration  time.Duration
	nextID    uint64
	closed    bool

	events chan fsnotify.Event
	errors chan error
	done   chan struct{}

	logger *logging.Logger

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	delivered atomic.Uint64
	dropped   atomic.Uint64
	errCount  atomic.Uint64
}

type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	EventsDropped   uint64
	Errors          uint64
	RestartAttempts int
}

func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	w := &Watcher{
		watcher:   fsw,
		callbacks: make(map[string][]callbackEntry),
		debounce:  make(map[string]debounceEntry),
		duration:  opts.Debounce,
		events:    make(chan fsnotify.Event, 16),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}
	w.startForwarder(fsw)
	go w.run()
	return w, nil
}

// Watch registers a callback for changes to path. The same path can
// carry any number of callbacks; the fsnotify registration is shared
// and removed with the last one.
func (w *Watcher) Watch(path string, callback func(Event)) (Handle, error) {
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	cleaned := filepath.Clean(path)

	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil, ErrClosed
	}
	first := len(w.callbacks[cleaned]) == 0
	w.nextID++
	id := w.nextID
	w.callbacks[cleaned] = append(w.callbacks[cleaned], callbackEntry{id: id, callback: callback})
	fsw := w.watcher
	w.mutex.Unlock()

	if first {
		if err := fsw.Add(cleaned); err != nil {
			w.removeCallback(cleaned, id)
			return nil, err
		}
	}
	return &registration{watcher: w, path: cleaned, id: id}, nil
}

func (w *Watcher) Close() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	w.closed = true
	for _, entry := range w.debounce {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	w.debounce = nil
	fsw := w.watcher
	w.mutex.Unlock()

	w.restartMutex.Lock()
	if w.restartTimer != nil {
		w.restartTimer.Stop()
		w.restartTimer = nil
	}
	w.restartMutex.Unlock()

	close(w.done)
	if fsw == nil {
		return nil
	}
	return fsw.Close()
}

func (w *Watcher) Metrics() Metrics {
	w.mutex.Lock()
	active := len(w.callbacks)
	w.mutex.Unlock()
	w.restartMutex.Lock()
	attempts := w.restartAttempts
	w.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: w.delivered.Load(),
		EventsDropped:   w.dropped.Load(),
		Errors:          w.errCount.Load(),
		RestartAttempts: attempts,
	}
}

type registration struct {
	watcher *Watcher
	path    string
	id      uint64
	once    sync.Once
}

func (r *registration) Close() error {
	r.once.Do(func() { r.watcher.removeCallback(r.path, r.id) })
	return nil
}

func (w *Watcher) removeCallback(path string, id uint64) {
	w.mutex.Lock()
	entries := w.callbacks[path]
	for i, entry := range entries {
		if entry.id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	last := len(entries) == 0
	if last {
		delete(w.callbacks, path)
	} else {
		w.callbacks[path] = entries
	}
	fsw := w.watcher
	closed := w.closed
	w.mutex.Unlock()

	if last && !closed && fsw != nil {
		_ = fsw.Remove(path)
	}
}

func (w *Watcher) run() {
	for {
		select {
		case ev := <-w.events:
			w.handleEvent(ev)
		case err := <-w.errors:
			w.handleError(err)
		case <-w.done:
			return
		}
	}
}

// startForwarder drains one fsnotify watcher into the shared channels.
// Each restart gets its own forwarder; the old one exits when its
// source closes.
func (w *Watcher) startForwarder(source *fsnotify.Watcher) {
	go func() {
		for {
			select {
			case ev, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case w.errors <- err:
				case <-w.done:
					return
				}
			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.mutex.Lock()
	if w.closed || !w.watchedLocked(ev.Name) {
		w.mutex.Unlock()
		return
	}
	entry := w.debounce[ev.Name]
	entry.event = Event{Path: ev.Name, Op: ev.Op, Timestamp: time.Now().UTC()}
	if entry.timer != nil {
		w.dropped.Add(1)
		entry.timer.Reset(w.duration)
	} else {
		path := ev.Name
		entry.timer = time.AfterFunc(w.duration, func() { w.flush(path) })
	}
	w.debounce[ev.Name] = entry
	w.mutex.Unlock()
}

func (w *Watcher) watchedLocked(path string) bool {
	if len(w.callbacks[path]) > 0 {
		return true
	}
	return len(w.callbacks[filepath.Dir(path)]) > 0
}

func (w *Watcher) flush(path string) {
	w.mutex.Lock()
	if w.closed || w.debounce == nil {
		w.mutex.Unlock()
		return
	}
	entry, ok := w.debounce[path]
	if !ok {
		w.mutex.Unlock()
		return
	}
	delete(w.debounce, path)
	callbacks := make([]func(Event), 0, 2)
	for _, c := range w.callbacks[path] {
		callbacks = append(callbacks, c.callback)
	}
	if dir := filepath.Dir(path); dir != path {
		for _, c := range w.callbacks[dir] {
			callbacks = append(callbacks, c.callback)
		}
	}
	w.mutex.Unlock()

	for _, callback := range callbacks {
		callback(entry.event)
		w.delivered.Add(1)
	}
}

func (w *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	w.errCount.Add(1)
	w.logWarn("watcher error", map[string]string{"error": err.Error()})
	w.scheduleRestart()
}

func (w *Watcher) scheduleRestart() {
	w.restartMutex.Lock()
	defer w.restartMutex.Unlock()
	if w.restartTimer != nil {
		return
	}
	if w.restartAttempts >= maxRestartAttempts {
		return
	}
	delay := restartBaseDelay * time.Duration(1<<w.restartAttempts)
	w.restartAttempts++
	w.restartTimer = time.AfterFunc(delay, w.performRestart)
}

func (w *Watcher) performRestart() {
	err := w.restart()

	w.restartMutex.Lock()
	w.restartTimer = nil
	if err == nil {
		w.restartAttempts = 0
		w.restartMutex.Unlock()
		return
	}
	w.restartMutex.Unlock()

	w.logWarn("watcher restart failed", map[string]string{"error": err.Error()})
	w.scheduleRestart()
}

// restart swaps in a fresh fsnotify watcher carrying the same paths.
func (w *Watcher) restart() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	paths := make([]string, 0, len(w.callbacks))
	for path := range w.callbacks {
		paths = append(paths, path)
	}
	w.mutex.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := replacement.Add(path); err != nil {
			w.logWarn("watch re-add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		_ = replacement.Close()
		return nil
	}
	previous := w.watcher
	w.watcher = replacement
	w.mutex.Unlock()

	w.startForwarder(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

func (w *Watcher) logWarn(msg string, fields map[string]string) {
	w.logger.Warn(msg, fields)
}
