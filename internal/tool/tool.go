// Package tool defines the assistant CLI descriptors the hub can launch
// and the registry that resolves them by name.
package tool

import (
	"fmt"
	"regexp"
	"strings"
)

const matchRegexpPrefix = "re:"

// Tool describes one launchable assistant CLI.
type Tool struct {
	// Name is the registry key.
	Name string `yaml:"name" json:"name"`
	// Command is the launch argv. Command[0] must resolve on PATH.
	Command []string `yaml:"command" json:"command"`
	// Env entries are applied to the spawned process. A nil value means
	// the variable is removed from the inherited environment.
	Env map[string]*string `yaml:"env,omitempty" json:"env,omitempty"`
	// URL points at install instructions, shown when Command[0] is not
	// installed.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Match identifies running processes that belong to this tool. Plain
	// entries are substring matches against the process command line;
	// entries prefixed with "re:" are regular expressions.
	Match []string `yaml:"match,omitempty" json:"match,omitempty"`
	// OnAir is a marker the tool prints once it accepts input. Empty
	// means the first output chunk counts as ready.
	OnAir string `yaml:"on_air,omitempty" json:"on_air,omitempty"`
	// NeedsFocus marks tools that only accept keystrokes while their
	// terminal is focused.
	NeedsFocus bool `yaml:"needs_focus,omitempty" json:"needs_focus,omitempty"`
	// NativeScroll marks tools that manage scrollback themselves.
	NativeScroll bool `yaml:"native_scroll,omitempty" json:"native_scroll,omitempty"`
	// Hidden tools are excluded from pickers but stay addressable.
	Hidden bool `yaml:"hidden,omitempty" json:"hidden,omitempty"`
	// Format holds the segment formatting templates.
	Format FormatSpec `yaml:"format,omitempty" json:"format,omitempty"`

	matchers []matcher
}

// FormatSpec tells the renderer how structured segments become literal
// text for this tool. Templates use {file}, {start}, {end}, {text}.
type FormatSpec struct {
	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	FileRange string `yaml:"file_range,omitempty" json:"file_range,omitempty"`
	Selection string `yaml:"selection,omitempty" json:"selection,omitempty"`
}

type matcher struct {
	substring string
	pattern   *regexp.Regexp
}

func (t *Tool) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(t.Command) == 0 || strings.TrimSpace(t.Command[0]) == "" {
		return fmt.Errorf("tool %q: command is required", t.Name)
	}
	return t.compileMatchers()
}

func (t *Tool) compileMatchers() error {
	t.matchers = t.matchers[:0]
	for _, rule := range t.Match {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(rule, matchRegexpPrefix); ok {
			pattern, err := regexp.Compile(rest)
			if err != nil {
				return fmt.Errorf("tool %q: match rule %q: %w", t.Name, rule, err)
			}
			t.matchers = append(t.matchers, matcher{pattern: pattern})
			continue
		}
		t.matchers = append(t.matchers, matcher{substring: rule})
	}
	return nil
}

// MatchesCommandLine reports whether a process command line belongs to
// this tool. With no rules configured, Command[0] is used as a
// substring fallback.
func (t *Tool) MatchesCommandLine(cmdline string) bool {
	if t == nil || cmdline == "" {
		return false
	}
	if len(t.matchers) == 0 {
		return len(t.Command) > 0 && strings.Contains(cmdline, t.Command[0])
	}
	for _, m := range t.matchers {
		if m.pattern != nil {
			if m.pattern.MatchString(cmdline) {
				return true
			}
			continue
		}
		if strings.Contains(cmdline, m.substring) {
			return true
		}
	}
	return false
}

// Environ applies the tool's Env entries on top of the given base
// environment ("KEY=VALUE" pairs) and returns the result.
func (t *Tool) Environ(base []string) []string {
	if t == nil || len(t.Env) == 0 {
		return base
	}

	removed := make(map[string]bool, len(t.Env))
	for key, value := range t.Env {
		if value == nil {
			removed[key] = true
		}
	}

	out := make([]string, 0, len(base)+len(t.Env))
	seen := make(map[string]bool, len(t.Env))
	for _, pair := range base {
		key, _, ok := strings.Cut(pair, "=")
		if !ok {
			out = append(out, pair)
			continue
		}
		if removed[key] {
			continue
		}
		if value, has := t.Env[key]; has && value != nil {
			out = append(out, key+"="+*value)
			seen[key] = true
			continue
		}
		out = append(out, pair)
	}
	for key, value := range t.Env {
		if value == nil || seen[key] {
			continue
		}
		out = append(out, key+"="+*value)
	}
	return out
}

func (t Tool) clone() Tool {
	copied := t
	copied.Command = append([]string(nil), t.Command...)
	copied.Match = append([]string(nil), t.Match...)
	if t.Env != nil {
		copied.Env = make(map[string]*string, len(t.Env))
		for key, value := range t.Env {
			if value == nil {
				copied.Env[key] = nil
				continue
			}
			v := *value
			copied.Env[key] = &v
		}
	}
	copied.matchers = nil
	_ = copied.compileMatchers()
	return copied
}
