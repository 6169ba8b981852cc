package tool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"aideck/internal/logging"
)

var ErrNotFound = errors.New("tool not found")

type RegistryOptions struct {
	// Dir holds user tool definitions, one YAML document per file.
	// Empty means built-ins only.
	Dir string
	// Defaults replaces the built-in tool set. Nil means Defaults().
	Defaults []Tool
	Logger   *logging.Logger
}

// Registry resolves tool names to descriptors. User definitions from
// the tools directory shadow built-ins of the same name.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	dir      string
	defaults []Tool
	logger   *logging.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	defaults := opts.Defaults
	if defaults == nil {
		defaults = Defaults()
	}
	r := &Registry{
		tools:    make(map[string]Tool),
		dir:      opts.Dir,
		defaults: defaults,
		logger:   opts.Logger,
	}
	r.Reload()
	return r
}

// Reload rebuilds the registry from built-ins plus the tools directory.
// Files that fail to parse are skipped and logged; the registry always
// ends up in a usable shape.
func (r *Registry) Reload() {
	merged := make(map[string]Tool, len(r.defaults))
	for _, t := range r.defaults {
		t := t.clone()
		if err := t.Validate(); err != nil {
			r.logWarn("invalid built-in tool skipped", map[string]string{"error": err.Error()})
			continue
		}
		merged[t.Name] = t
	}

	if r.dir != "" {
		loaded, err := LoadDir(r.dir)
		if err != nil {
			r.logWarn("tool definitions partially loaded", map[string]string{
				"dir":   r.dir,
				"error": err.Error(),
			})
		}
		seen := make(map[string]bool, len(loaded))
		for _, t := range loaded {
			if seen[t.Name] {
				r.logWarn("duplicate tool definition, last file wins", map[string]string{
					"tool": t.Name,
				})
			}
			seen[t.Name] = true
			merged[t.Name] = t
		}
	}

	r.mu.Lock()
	r.tools = merged
	r.mu.Unlock()

	r.logDebug("tool registry loaded", map[string]string{
		"count": fmt.Sprintf("%d", len(merged)),
	})
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Resolve returns the named tool, matching exactly first and then
// case-insensitively. Unknown names wrap ErrNotFound.
func (r *Registry) Resolve(name string) (Tool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tool{}, fmt.Errorf("unknown tool %q: %w", name, ErrNotFound)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok {
		return t, nil
	}
	for key, t := range r.tools {
		if strings.EqualFold(key, name) {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("unknown tool %q: %w", name, ErrNotFound)
}

// Snapshot returns all tools sorted by name.
func (r *Registry) Snapshot() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Visible returns the non-hidden tools sorted by name, the set pickers
// offer.
func (r *Registry) Visible() []Tool {
	all := r.Snapshot()
	out := all[:0]
	for _, t := range all {
		if !t.Hidden {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Names() []string {
	tools := r.Visible()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func (r *Registry) logWarn(msg string, fields map[string]string) {
	if r.logger != nil {
		r.logger.Warn(msg, fields)
	}
}

func (r *Registry) logDebug(msg string, fields map[string]string) {
	if r.logger != nil {
		r.logger.Debug(msg, fields)
	}
}
