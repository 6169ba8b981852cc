package deck

import (
	"strconv"
	"strings"

	"aideck/internal/process"
	"aideck/internal/session"
	"aideck/internal/state"
	"aideck/internal/tool"
)

// scanProcs is swapped in tests.
var scanProcs = process.Scan

// Discover adopts tool windows that survived a previous run of the
// hub. Only the configured tmux session is inspected; pty children die
// with the hub and cannot be recovered. A window is adopted when its
// name parses back to a state id, its pane process matches the tool's
// identification rule, and no state with that id is registered.
// Returns the number of states adopted.
func (d *Deck) Discover() (int, error) {
	if d.tmuxClient == nil {
		return 0, nil
	}
	windows, err := d.tmuxClient.ListWindows(d.tmuxSession)
	if err != nil {
		return 0, err
	}
	if len(windows) == 0 {
		return 0, nil
	}
	procs, err := scanProcs()
	if err != nil {
		d.logger.Warn("process scan failed", map[string]string{"error": err.Error()})
		procs = nil
	}
	cmdlines := make(map[int]string, len(procs))
	for _, p := range procs {
		cmdlines[p.PID] = p.Cmdline
	}

	adopted := 0
	err = d.loop.Do(func() error {
		for _, w := range windows {
			id, t, ok := d.stateIDForWindow(w.Name)
			if !ok {
				continue
			}
			if _, exists := d.states.Find(id); exists {
				continue
			}
			if cmdline := cmdlines[w.PanePID]; cmdline != "" && !t.MatchesCommandLine(cmdline) {
				continue
			}
			backend := session.NewTmuxBackend(d.tmuxClient, d.tmuxSession, w.ID, w.PanePID)
			sess := session.Adopt(id, t, backend, d.logger, d.metrics)
			st := state.New(id, t, sess)
			if err := d.states.Add(st); err != nil {
				d.logger.Warn("adopt failed", map[string]string{
					"state": id,
					"error": err.Error(),
				})
				continue
			}
			d.logger.Info("session adopted", map[string]string{
				"state":  id,
				"tool":   t.Name,
				"window": w.ID,
			})
			adopted++
		}
		return nil
	})
	return adopted, err
}

// stateIDForWindow inverts the window naming scheme: "<tool>_<n>" back
// to the "<tool> <n>" state id, matching tool names through the same
// sanitizer the factory used.
func (d *Deck) stateIDForWindow(name string) (string, tool.Tool, bool) {
	cut := strings.LastIndex(name, "_")
	if cut <= 0 || cut == len(name)-1 {
		return "", tool.Tool{}, false
	}
	seq, err := strconv.Atoi(name[cut+1:])
	if err != nil || seq <= 0 {
		return "", tool.Tool{}, false
	}
	prefix := name[:cut]
	for _, t := range d.tools.Snapshot() {
		if session.WindowName(t.Name) == prefix {
			return t.Name + " " + strconv.Itoa(seq), t, true
		}
	}
	return "", tool.Tool{}, false
}
