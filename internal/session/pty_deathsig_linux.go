//go:build linux

package session

import "syscall"

// The tool should not outlive a crashed hub.
func setPtyDeathSignal(attr *syscall.SysProcAttr) {
	if attr == nil {
		return
	}
	attr.Pdeathsig = syscall.SIGTERM
}
