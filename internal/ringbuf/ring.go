// Package ringbuf provides a fixed-capacity ring that keeps the most
// recent entries. It is not safe for concurrent use; callers guard it.
package ringbuf

type Ring[T any] struct {
	entries []T
	next    int
	full    bool
}

func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{entries: make([]T, capacity)}
}

// Push appends an entry, evicting the oldest one once the ring is full.
func (r *Ring[T]) Push(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}
	r.entries[r.next] = entry
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	if r.full {
		return len(r.entries)
	}
	return r.next
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Snapshot returns the retained entries oldest first.
func (r *Ring[T]) Snapshot() []T {
	count := r.Len()
	if count == 0 {
		return nil
	}
	out := make([]T, 0, count)
	start := 0
	if r.full {
		start = r.next
	}
	for i := 0; i < count; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

// Tail returns at most n of the newest entries, oldest first.
func (r *Ring[T]) Tail(n int) []T {
	all := r.Snapshot()
	if n <= 0 || len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}
