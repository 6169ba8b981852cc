package session

import (
	"sync"
	"time"

	"aideck/internal/ringbuf"
)

const defaultInputLogSize = 100

// InputRecord is one delivered message.
type InputRecord struct {
	Time      time.Time `json:"time"`
	Text      string    `json:"text"`
	Submitted bool      `json:"submitted"`
}

// InputLog retains the most recent messages delivered to a session.
type InputLog struct {
	mu      sync.Mutex
	records *ringbuf.Ring[InputRecord]
}

func NewInputLog(size int) *InputLog {
	if size <= 0 {
		size = defaultInputLogSize
	}
	return &InputLog{records: ringbuf.New[InputRecord](size)}
}

func (l *InputLog) Record(text string, submitted bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records.Push(InputRecord{Time: time.Now().UTC(), Text: text, Submitted: submitted})
}

func (l *InputLog) List() []InputRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records.Snapshot()
}
