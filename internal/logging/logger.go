package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultHistorySize = 1000

// Logger writes leveled key=value lines, retains recent entries in a
// bounded history, and fans entries out to hub subscribers.
type Logger struct {
	history *History
	out     *log.Logger
	min     Level
	base    map[string]string
	hub     *Hub
}

func New(min Level) *Logger {
	return NewWithOutput(min, os.Stdout)
}

func NewWithOutput(min Level, output io.Writer) *Logger {
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		history: NewHistory(DefaultHistorySize),
		out:     log.New(output, "", log.LstdFlags),
		min:     normalizeLevel(min),
		hub:     NewHub(),
	}
}

func (l *Logger) History() *History {
	if l == nil {
		return nil
	}
	return l.history
}

func (l *Logger) Subscribe() (<-chan Entry, func()) {
	if l == nil || l.hub == nil {
		return nil, func() {}
	}
	return l.hub.Subscribe(0)
}

// With returns a child logger whose entries carry the given fields in
// addition to the parent's. History and hub are shared.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		history: l.history,
		out:     l.out,
		min:     l.min,
		base:    mergeFields(l.base, fields),
		hub:     l.hub,
	}
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.emit(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.emit(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.emit(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.emit(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.min)
}

func (l *Logger) emit(level Level, message string, fields map[string]string) {
	if l == nil || !l.Enabled(level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Fields:    mergeFields(l.base, fields),
	}
	if l.history != nil {
		l.history.Add(entry)
	}
	if l.hub != nil {
		l.hub.Broadcast(entry)
	}
	if l.out != nil {
		l.out.Print(formatEntry(entry))
	}
}

func normalizeLevel(level Level) Level {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level
	default:
		return LevelInfo
	}
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func LevelAtLeast(level, min Level) bool {
	if min == "" {
		return true
	}
	return levelRank(level) >= levelRank(min)
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

func formatEntry(entry Entry) string {
	var b strings.Builder
	b.WriteString("level=")
	b.WriteString(string(entry.Level))
	b.WriteString(" msg=")
	b.WriteString(strconv.Quote(entry.Message))

	if len(entry.Fields) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, strconv.Quote(entry.Fields[key]))
	}
	return b.String()
}
