package session

import "os/exec"

// Pty is the minimal pseudo-terminal surface the pty backend needs.
type Pty interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Resize(cols, rows uint16) error
}

// StartRequest describes the process a PtyFactory should launch.
type StartRequest struct {
	Argv []string
	Env  []string
	Dir  string
	Cols uint16
	Rows uint16
}

// PtyFactory starts a process attached to a fresh pty.
type PtyFactory interface {
	Start(req StartRequest) (Pty, *exec.Cmd, error)
}

func DefaultPtyFactory() PtyFactory {
	return defaultPtyFactory{}
}
