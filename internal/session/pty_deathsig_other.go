//go:build !linux && !windows

package session

import "syscall"

func setPtyDeathSignal(attr *syscall.SysProcAttr) {
}
