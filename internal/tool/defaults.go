package tool

// Defaults returns the built-in tool set. User definitions loaded from
// the tools directory override these by name.
func Defaults() []Tool {
	return []Tool{
		{
			Name:    "claude",
			Command: []string{"claude"},
			URL:     "https://github.com/anthropics/claude-code",
			Match:   []string{"claude"},
			Format:  FormatSpec{File: "@{file}", FileRange: "@{file}#L{start}-{end}"},
		},
		{
			Name:    "codex",
			Command: []string{"codex"},
			URL:     "https://github.com/openai/codex",
			Match:   []string{"codex"},
			Format:  FormatSpec{File: "@{file}", FileRange: "@{file}"},
		},
		{
			Name:    "gemini",
			Command: []string{"gemini"},
			URL:     "https://github.com/google-gemini/gemini-cli",
			Match:   []string{"gemini"},
			Format:  FormatSpec{File: "@{file}", FileRange: "@{file}"},
		},
		{
			Name:         "aider",
			Command:      []string{"aider"},
			URL:          "https://aider.chat",
			Match:        []string{"aider"},
			NativeScroll: true,
			Format:       FormatSpec{File: "{file}", FileRange: "{file}:{start}"},
		},
		{
			Name:    "opencode",
			Command: []string{"opencode"},
			URL:     "https://github.com/sst/opencode",
			Match:   []string{"opencode"},
			Format:  FormatSpec{File: "@{file}", FileRange: "@{file}"},
		},
	}
}
