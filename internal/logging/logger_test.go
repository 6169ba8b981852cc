package logging

import (
	"strings"
	"testing"
)

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	var sink strings.Builder
	logger := NewWithOutput(LevelWarning, &sink)

	logger.Debug("debug line", nil)
	logger.Info("info line", nil)
	logger.Warn("warn line", nil)
	logger.Error("error line", nil)

	entries := logger.History().List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 retained entries, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning || entries[1].Level != LevelError {
		t.Fatalf("unexpected levels: %v, %v", entries[0].Level, entries[1].Level)
	}
	if strings.Contains(sink.String(), "info line") {
		t.Fatal("info line should not have been written")
	}
}

func TestLoggerFormatsSortedFields(t *testing.T) {
	entry := Entry{
		Level:   LevelInfo,
		Message: "session started",
		Fields:  map[string]string{"tool": "claude", "backend": "pty"},
	}

	got := formatEntry(entry)
	want := `level=info msg="session started" backend="pty" tool="claude"`
	if got != want {
		t.Fatalf("formatEntry mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestWithMergesFields(t *testing.T) {
	var sink strings.Builder
	logger := NewWithOutput(LevelDebug, &sink)
	child := logger.With(map[string]string{"state_id": "claude 1"})

	child.Info("attached", map[string]string{"tool": "claude"})

	entries := logger.History().List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].Fields
	if fields["state_id"] != "claude 1" || fields["tool"] != "claude" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestChildOverridesParentField(t *testing.T) {
	logger := NewWithOutput(LevelDebug, nil).With(map[string]string{"tool": "codex"})
	child := logger.With(map[string]string{"tool": "claude"})

	child.Info("msg", nil)

	entries := logger.History().List()
	if entries[0].Fields["tool"] != "claude" {
		t.Fatalf("child field should win, got %q", entries[0].Fields["tool"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		level Level
		ok    bool
	}{
		"debug":   {LevelDebug, true},
		"INFO":    {LevelInfo, true},
		" warn ":  {LevelWarning, true},
		"warning": {LevelWarning, true},
		"error":   {LevelError, true},
		"trace":   {"", false},
		"":        {"", false},
	}
	for input, want := range cases {
		level, ok := ParseLevel(input)
		if level != want.level || ok != want.ok {
			t.Fatalf("ParseLevel(%q) = %q, %v; want %q, %v", input, level, ok, want.level, want.ok)
		}
	}
}

func TestLevelAtLeast(t *testing.T) {
	if !LevelAtLeast(LevelError, LevelWarning) {
		t.Fatal("error should satisfy warning minimum")
	}
	if LevelAtLeast(LevelDebug, LevelInfo) {
		t.Fatal("debug should not satisfy info minimum")
	}
	if !LevelAtLeast(LevelDebug, "") {
		t.Fatal("empty minimum admits everything")
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	if logger.Enabled(LevelError) {
		t.Fatal("nil logger should report disabled")
	}
	if logger.With(map[string]string{"k": "v"}) != nil {
		t.Fatal("nil logger With should stay nil")
	}
}

func FuzzParseLevel(f *testing.F) {
	for _, seed := range []string{"debug", "info", "warn", "warning", "error", "", "ERROR", "inf o"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		level, ok := ParseLevel(input)
		if ok && normalizeLevel(level) != level {
			t.Fatalf("ParseLevel(%q) returned unnormalized level %q", input, level)
		}
		if !ok && level != "" {
			t.Fatalf("ParseLevel(%q) rejected input but returned level %q", input, level)
		}
	})
}
