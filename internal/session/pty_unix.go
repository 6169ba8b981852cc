//go:build !windows

package session

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

type filePty struct {
	file *os.File
}

func (p *filePty) Read(data []byte) (int, error) {
	return p.file.Read(data)
}

func (p *filePty) Write(data []byte) (int, error) {
	return p.file.Write(data)
}

func (p *filePty) Close() error {
	return p.file.Close()
}

func (p *filePty) Resize(cols, rows uint16) error {
	return pty.Setsize(p.file, &pty.Winsize{Cols: cols, Rows: rows})
}

type defaultPtyFactory struct{}

func (defaultPtyFactory) Start(req StartRequest) (Pty, *exec.Cmd, error) {
	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Env = req.Env
	cmd.Dir = req.Dir
	// Own process group so Close can signal the whole tool tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	setPtyDeathSignal(cmd.SysProcAttr)

	size := &pty.Winsize{Cols: req.Cols, Rows: req.Rows}
	if size.Cols == 0 {
		size.Cols = 120
	}
	if size.Rows == 0 {
		size.Rows = 32
	}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, nil, err
	}
	return &filePty{file: ptmx}, cmd, nil
}
