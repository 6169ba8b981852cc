//go:build windows

package session

import (
	"errors"
	"os/exec"
)

var errConPTYUnavailable = errors.New("conpty support not implemented")

type defaultPtyFactory struct{}

func (defaultPtyFactory) Start(req StartRequest) (Pty, *exec.Cmd, error) {
	return nil, nil, errConPTYUnavailable
}
