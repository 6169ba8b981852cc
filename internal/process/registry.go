// Package process tracks the tool processes the hub has spawned and
// provides liveness checks and discovery of processes left over from a
// previous run.
package process

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotRunning = errors.New("process not running")

const defaultStopTimeout = 5 * time.Second

// Entry is one spawned tool process. Wait, when present, blocks until
// the process has exited and is preferred over polling.
type Entry struct {
	PID  int
	PGID int
	Tool string
	Wait func(context.Context) error
}

type Registry struct {
	mu      sync.Mutex
	entries map[int]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]Entry)}
}

func (r *Registry) Register(pid, pgid int, toolName string, wait func(context.Context) error) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	r.entries[pid] = Entry{PID: pid, PGID: pgid, Tool: toolName, Wait: wait}
	r.mu.Unlock()
}

func (r *Registry) Unregister(pid int) {
	if r == nil || pid <= 0 {
		return
	}
	r.mu.Lock()
	delete(r.entries, pid)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() []Entry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	return out
}

// Stop terminates one registered process group and removes its entry.
func (r *Registry) Stop(ctx context.Context, pid int) error {
	if r == nil || pid <= 0 {
		return nil
	}
	r.mu.Lock()
	entry, ok := r.entries[pid]
	if ok {
		delete(r.entries, pid)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	err := stopProcess(ctx, entry.PID, entry.PGID, entry.Wait)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// StopAll terminates every registered process group, escalating from
// SIGTERM to SIGKILL when a process ignores the first signal. Entries
// are removed regardless of outcome.
func (r *Registry) StopAll(ctx context.Context) error {
	if r == nil {
		return nil
	}
	entries := r.Snapshot()

	var stopErr error
	for _, entry := range entries {
		if err := stopProcess(ctx, entry.PID, entry.PGID, entry.Wait); err != nil && !errors.Is(err, ErrNotRunning) {
			stopErr = errors.Join(stopErr, err)
		}
	}
	if len(entries) > 0 {
		r.mu.Lock()
		for _, entry := range entries {
			delete(r.entries, entry.PID)
		}
		r.mu.Unlock()
	}
	return stopErr
}
