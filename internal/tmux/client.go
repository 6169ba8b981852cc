// Package tmux wraps the tmux CLI for the external-multiplexer backend.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Keystroke payloads are chunked so a long message never exceeds the
// tmux command argument limit.
const sendChunkSize = 4096

// CommandRunner executes one tmux command with optional stdin data.
type CommandRunner interface {
	Run(args []string, input []byte) ([]byte, error)
}

type Client struct {
	runner CommandRunner
}

func NewClient() *Client {
	return &Client{runner: execRunner{}}
}

func NewClientWithRunner(runner CommandRunner) *Client {
	return &Client{runner: runner}
}

// InsideTmux reports whether the current process runs inside a tmux
// client.
func InsideTmux() bool {
	return os.Getenv("TMUX") != ""
}

// NewSession creates a detached session running only the default shell.
func (c *Client) NewSession(name string) error {
	return c.run([]string{"new-session", "-d", "-s", name}, nil)
}

func (c *Client) HasSession(name string) (bool, error) {
	if c == nil || c.runner == nil {
		return false, errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run([]string{"has-session", "-t", name}, nil)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		if len(output) > 0 {
			return false, fmt.Errorf("tmux has-session failed: %s", bytes.TrimSpace(output))
		}
		return false, fmt.Errorf("tmux has-session failed: %w", err)
	}
	return true, nil
}

// NewWindow creates a window running argv and returns its window ID
// (the stable "@n" form, usable as a target).
func (c *Client) NewWindow(session, name string, argv, env []string, dir string) (string, error) {
	args := []string{"new-window", "-d", "-P", "-F", "#{window_id}"}
	if strings.TrimSpace(session) != "" {
		args = append(args, "-t", session+":")
	}
	if strings.TrimSpace(name) != "" {
		args = append(args, "-n", name)
	}
	if strings.TrimSpace(dir) != "" {
		args = append(args, "-c", dir)
	}
	for _, pair := range env {
		args = append(args, "-e", pair)
	}
	if len(argv) > 0 {
		args = append(args, "--")
		args = append(args, argv...)
	}
	output, err := c.runWithOutput(args, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (c *Client) KillWindow(target string) error {
	return c.run([]string{"kill-window", "-t", target}, nil)
}

// WindowAlive reports whether the target window still exists.
func (c *Client) WindowAlive(target string) bool {
	if c == nil || c.runner == nil {
		return false
	}
	_, err := c.runner.Run([]string{"list-panes", "-t", target}, nil)
	return err == nil
}

// SendText delivers literal text to the target pane without pressing
// Enter. The -l flag keeps key-name lookup off so the payload arrives
// byte for byte.
func (c *Client) SendText(target, text string) error {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > sendChunkSize {
			chunk = chunk[:sendChunkSize]
		}
		text = text[len(chunk):]
		if err := c.run([]string{"send-keys", "-l", "-t", target, "--", chunk}, nil); err != nil {
			return err
		}
	}
	return nil
}

// SendEnter presses Enter in the target pane.
func (c *Client) SendEnter(target string) error {
	return c.run([]string{"send-keys", "-t", target, "Enter"}, nil)
}

// PastePayload pushes data through the tmux paste buffer. Large
// payloads paste faster than key streams.
func (c *Client) PastePayload(target string, data []byte) error {
	if err := c.run([]string{"load-buffer", "-"}, data); err != nil {
		return err
	}
	return c.run([]string{"paste-buffer", "-d", "-t", target}, nil)
}

// CapturePane returns the visible pane contents, or the last lines of
// scrollback when lines > 0.
func (c *Client) CapturePane(target string, lines int) ([]byte, error) {
	args := []string{"capture-pane", "-p", "-t", target}
	if lines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", lines))
	}
	return c.runWithOutput(args, nil)
}

// PanePID returns the pid of the process running in the target pane.
func (c *Client) PanePID(target string) (int, error) {
	output, err := c.runWithOutput([]string{"display-message", "-p", "-t", target, "#{pane_pid}"}, nil)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, fmt.Errorf("tmux pane pid: %w", err)
	}
	return pid, nil
}

func (c *Client) SelectWindow(target string) error {
	return c.run([]string{"select-window", "-t", target}, nil)
}

// Window describes one window of a tmux session.
type Window struct {
	ID      string
	Name    string
	PanePID int
}

// ListWindows returns the session's windows, first pane pid included.
// A missing session yields an empty list, not an error.
func (c *Client) ListWindows(session string) ([]Window, error) {
	ok, err := c.HasSession(session)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	output, err := c.runWithOutput([]string{
		"list-windows", "-t", session,
		"-F", "#{window_id}\t#{window_name}\t#{pane_pid}",
	}, nil)
	if err != nil {
		return nil, err
	}

	var windows []Window
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			pid = 0
		}
		windows = append(windows, Window{ID: parts[0], Name: parts[1], PanePID: pid})
	}
	return windows, nil
}

func (c *Client) ResizeWindow(target string, cols, rows uint16) error {
	args := []string{"resize-window", "-t", target}
	if cols > 0 {
		args = append(args, "-x", strconv.Itoa(int(cols)))
	}
	if rows > 0 {
		args = append(args, "-y", strconv.Itoa(int(rows)))
	}
	return c.run(args, nil)
}

// AttachCommand returns the argv a user runs to reach the target,
// depending on whether they are already inside tmux.
func AttachCommand(session, target string, inside bool) []string {
	if inside {
		return []string{"tmux", "switch-client", "-t", target}
	}
	return []string{"tmux", "attach-session", "-t", session}
}

func (c *Client) run(args []string, input []byte) error {
	_, err := c.runWithOutput(args, input)
	return err
}

func (c *Client) runWithOutput(args []string, input []byte) ([]byte, error) {
	if c == nil || c.runner == nil {
		return nil, errors.New("tmux runner unavailable")
	}
	output, err := c.runner.Run(args, input)
	if err != nil {
		if len(output) > 0 {
			return nil, fmt.Errorf("tmux %s failed: %s", args[0], bytes.TrimSpace(output))
		}
		return nil, fmt.Errorf("tmux %s failed: %w", args[0], err)
	}
	return output, nil
}

type execRunner struct{}

func (execRunner) Run(args []string, input []byte) ([]byte, error) {
	cmd := exec.Command("tmux", args...)
	if len(input) > 0 {
		cmd.Stdin = bytes.NewReader(input)
	}
	return cmd.CombinedOutput()
}
