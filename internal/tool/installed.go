package tool

import (
	"fmt"
	"os/exec"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// NotInstalledError reports a tool whose executable is missing from
// PATH. URL carries the install guidance shown to the user.
type NotInstalledError struct {
	Name    string
	Command string
	URL     string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s is not installed: %q not found on PATH", e.Name, e.Command)
}

// Installed checks that the tool's executable resolves on PATH. It runs
// before any spawn attempt so a missing binary never produces a dead
// session.
func Installed(t Tool) error {
	if len(t.Command) == 0 {
		return &NotInstalledError{Name: t.Name, URL: t.URL}
	}
	if _, err := lookPath(t.Command[0]); err != nil {
		return &NotInstalledError{Name: t.Name, Command: t.Command[0], URL: t.URL}
	}
	return nil
}
