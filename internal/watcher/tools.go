package watcher

import (
	"path/filepath"
	"strings"

	"aideck/internal/event"
	"aideck/internal/logging"
	"aideck/internal/tool"
)

// WatchTools hot-reloads the tool registry when a definition under dir
// changes and publishes tools.reloaded so connected clients refresh
// their pickers.
func WatchTools(w *Watcher, dir string, reg *tool.Registry, bus *event.Bus[event.DeckEvent], logger *logging.Logger) (Handle, error) {
	return w.Watch(dir, func(ev Event) {
		if !isToolFile(ev.Path) {
			return
		}
		reg.Reload()
		logger.Info("tool definitions reloaded", map[string]string{
			"path": ev.Path,
		})
		if bus != nil {
			bus.Publish(event.NewDeckEvent(event.TypeToolsReloaded, "", "").
				WithDetail(filepath.Base(ev.Path)))
		}
	})
}

func isToolFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
