package state

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"aideck/internal/event"
	"aideck/internal/logging"
	"aideck/internal/metrics"
)

var (
	ErrNotFound    = errors.New("state not found")
	ErrStateExists = errors.New("state already registered")
)

const (
	maxStateIDLength = 128
	maxIDAttempts    = 64
)

type RegistryOptions struct {
	Bus     *event.Bus[event.DeckEvent]
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Registry is the process-wide set of states. Iteration order is
// insertion order so filtered reads are deterministic.
type Registry struct {
	mu    sync.RWMutex
	order []*State
	byID  map[string]*State
	seq   map[string]uint64

	bus     *event.Bus[event.DeckEvent]
	logger  *logging.Logger
	metrics *metrics.Registry
}

func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		byID:    make(map[string]*State),
		seq:     make(map[string]uint64),
		bus:     opts.Bus,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// NewID reserves nothing; it returns the next free "<tool> <n>" id for
// the tool, skipping ids that are still registered.
func (r *Registry) NewID(toolName string) (string, error) {
	name := sanitizeName(toolName)
	if name == "" {
		return "", errors.New("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	start := r.seq[name]
	for attempt := uint64(0); attempt < maxIDAttempts; attempt++ {
		sequence := start + attempt + 1
		id := fmt.Sprintf("%s %d", name, sequence)
		if len(id) > maxStateIDLength {
			return "", fmt.Errorf("state id exceeds %d characters", maxStateIDLength)
		}
		if _, exists := r.byID[id]; !exists {
			r.seq[name] = sequence
			return id, nil
		}
	}
	return "", errors.New("state id collision")
}

// Add registers the state. Externally minted ids (re-attach) advance
// the tool's sequence so NewID never collides with them.
func (r *Registry) Add(s *State) error {
	if s == nil {
		return errors.New("state is nil")
	}
	if err := validateID(s.ID); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.byID[s.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStateExists, s.ID)
	}
	r.byID[s.ID] = s
	r.order = append(r.order, s)
	if name := sanitizeName(s.Name()); name != "" {
		if sequence, ok := parseSequence(s.ID, name); ok && sequence > r.seq[name] {
			r.seq[name] = sequence
		}
	}
	r.mu.Unlock()

	r.metrics.IncStateCreated()
	if r.logger != nil {
		r.logger.Info("state created", map[string]string{
			"state": s.ID,
			"tool":  s.Name(),
		})
	}
	if r.bus != nil {
		r.bus.Publish(event.NewDeckEvent(event.TypeStateCreated, s.ID, s.Name()))
	}
	return nil
}

// Remove detaches the state from the registry and releases its
// terminal handle. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (*State, bool) {
	r.mu.Lock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		for i, candidate := range r.order {
			if candidate == s {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}

	s.Terminal().Release()

	r.metrics.IncStateClosed()
	if r.logger != nil {
		r.logger.Info("state removed", map[string]string{
			"state": id,
			"tool":  s.Name(),
		})
	}
	if r.bus != nil {
		r.bus.Publish(event.NewDeckEvent(event.TypeStateClosed, id, s.Name()))
	}
	return s, true
}

func (r *Registry) Find(id string) (*State, bool) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	return s, ok
}

// Get returns the states matching the filter, in insertion order.
func (r *Registry) Get(f Filter) []*State {
	r.mu.RLock()
	candidates := make([]*State, len(r.order))
	copy(candidates, r.order)
	r.mu.RUnlock()

	matched := make([]*State, 0, len(candidates))
	for _, s := range candidates {
		if f.Match(s) {
			matched = append(matched, s)
		}
	}
	return matched
}

// First returns the first state matching the filter in insertion
// order.
func (r *Registry) First(f Filter) (*State, bool) {
	for _, s := range r.Get(f) {
		return s, true
	}
	return nil, false
}

func (r *Registry) List() []*State {
	return r.Get(Filter{})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// sanitizeName strips path separators and control characters from a
// tool name used in state ids.
func sanitizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("state id is required")
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return errors.New("state id contains invalid characters")
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return errors.New("state id contains invalid characters")
		}
	}
	if len(trimmed) > maxStateIDLength {
		return fmt.Errorf("state id exceeds %d characters", maxStateIDLength)
	}
	return nil
}

// parseSequence extracts n from "<name> <n>" ids.
func parseSequence(id, name string) (uint64, bool) {
	prefix := name + " "
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	rest := strings.TrimSpace(id[len(prefix):])
	if rest == "" {
		return 0, false
	}
	value, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return value, true
}
