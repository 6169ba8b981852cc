package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunVersionFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"--version"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d, stderr %q", code, errOut.String())
	}
	if !strings.Contains(out.String(), "aideck") {
		t.Fatalf("version output = %q", out.String())
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"--no-such-flag"}, &out, &errOut); code != 1 {
		t.Fatalf("exit = %d", code)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Setenv("AIDECK_BACKEND", "floppy")

	var out, errOut bytes.Buffer
	config := filepath.Join(t.TempDir(), "missing.yaml")
	if code := run([]string{"--config", config}, &out, &errOut); code != 1 {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(errOut.String(), "backend") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}
