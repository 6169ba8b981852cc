package session

import (
	"strings"
	"sync"

	"aideck/internal/ringbuf"
)

const DefaultHistoryLines = 1000

// OutputBuffer keeps the most recent output lines. A trailing partial
// line is carried until its newline arrives.
type OutputBuffer struct {
	mu    sync.Mutex
	lines *ringbuf.Ring[string]
	carry string
}

func NewOutputBuffer(maxLines int) *OutputBuffer {
	if maxLines <= 0 {
		maxLines = DefaultHistoryLines
	}
	return &OutputBuffer{lines: ringbuf.New[string](maxLines)}
}

func (b *OutputBuffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	chunk := b.carry + string(data)
	parts := strings.Split(chunk, "\n")
	if chunk[len(chunk)-1] != '\n' {
		b.carry = parts[len(parts)-1]
	} else {
		b.carry = ""
	}
	for _, line := range parts[:len(parts)-1] {
		b.lines.Push(line)
	}
}

// Lines returns the retained lines oldest first, including any carried
// partial line.
func (b *OutputBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines.Snapshot()
	if lines == nil {
		lines = []string{}
	}
	if b.carry != "" {
		lines = append(lines, b.carry)
	}
	return lines
}

// Tail returns at most n of the newest lines.
func (b *OutputBuffer) Tail(n int) []string {
	lines := b.Lines()
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
