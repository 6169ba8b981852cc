//go:build !windows

package process

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// execCommand is swapped in tests.
var execCommand = exec.Command

// Proc is one row of the system process table.
type Proc struct {
	PID     int
	Cmdline string
}

// Scan lists live processes with their full command lines. It backs
// re-attach discovery after a hub restart.
func Scan() ([]Proc, error) {
	out, err := execCommand("ps", "-eo", "pid=,args=").Output()
	if err != nil {
		return nil, fmt.Errorf("ps: %w", err)
	}
	return parsePS(out), nil
}

func parsePS(out []byte) []Proc {
	var procs []Proc
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pidField, args, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidField)
		if err != nil || pid <= 0 {
			continue
		}
		procs = append(procs, Proc{PID: pid, Cmdline: strings.TrimSpace(args)})
	}
	return procs
}
