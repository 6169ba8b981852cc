// Package config loads the hub configuration: built-in defaults, then
// the YAML config file, then AIDECK_* environment overrides, each
// layer winning over the one before it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aideck/internal/logging"
)

const (
	DefaultListen = "127.0.0.1:7433"

	defaultLogLevel     = string(logging.LevelInfo)
	defaultBackend      = "pty"
	defaultTmuxSession  = "aideck"
	defaultHistoryLines = 1000
	defaultCreateGrace  = 500 * time.Millisecond
	defaultReadyTimeout = 2 * time.Second
	defaultSweep        = 2 * time.Second
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "2s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	// Listen is the HTTP API address.
	Listen string `yaml:"listen"`
	// Token, when set, is required as a bearer token on every API
	// request. Empty disables auth; the default bind is loopback-only.
	Token string `yaml:"token"`
	// AllowedOrigins limits browser WebSocket upgrades. Empty rejects
	// all cross-origin upgrades; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	ToolsDir   string `yaml:"tools_dir"`
	PromptsDir string `yaml:"prompts_dir"`
	// WorkDir is the directory sessions start in. Empty means the
	// hub's working directory.
	WorkDir string `yaml:"work_dir"`

	// DefaultTool is used when a send has to create a session and no
	// tool was named.
	DefaultTool string `yaml:"default_tool"`
	// Backend is the backend kind for created sessions: pty or tmux.
	Backend     string `yaml:"backend"`
	TmuxSession string `yaml:"tmux_session"`

	LogLevel     string `yaml:"log_level"`
	HistoryLines int    `yaml:"history_lines"`

	CreateGrace   Duration `yaml:"create_grace"`
	ReadyTimeout  Duration `yaml:"ready_timeout"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

func Default() Config {
	return Config{
		Listen:        DefaultListen,
		Backend:       defaultBackend,
		TmuxSession:   defaultTmuxSession,
		LogLevel:      defaultLogLevel,
		HistoryLines:  defaultHistoryLines,
		CreateGrace:   Duration(defaultCreateGrace),
		ReadyTimeout:  Duration(defaultReadyTimeout),
		SweepInterval: Duration(defaultSweep),
	}
}

// Dir returns the aideck configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "aideck"), nil
}

// DefaultPath returns the default config file location. It does not
// require the file to exist.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load builds the effective configuration. A missing file is not an
// error; a malformed one is. Environment variables win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(payload, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// First run.
		default:
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = def.Listen
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = def.Backend
	}
	if strings.TrimSpace(c.TmuxSession) == "" {
		c.TmuxSession = def.TmuxSession
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	if c.HistoryLines <= 0 {
		c.HistoryLines = def.HistoryLines
	}
	if c.CreateGrace <= 0 {
		c.CreateGrace = def.CreateGrace
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = def.ReadyTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if strings.TrimSpace(c.ToolsDir) == "" || strings.TrimSpace(c.PromptsDir) == "" {
		if dir, err := Dir(); err == nil {
			if strings.TrimSpace(c.ToolsDir) == "" {
				c.ToolsDir = filepath.Join(dir, "tools")
			}
			if strings.TrimSpace(c.PromptsDir) == "" {
				c.PromptsDir = filepath.Join(dir, "prompts")
			}
		}
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case "pty", "tmux":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Level returns the parsed log level. Validate has already rejected
// unknown values.
func (c Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

func applyEnv(cfg *Config) error {
	stringVars := map[string]*string{
		"AIDECK_LISTEN":       &cfg.Listen,
		"AIDECK_TOKEN":        &cfg.Token,
		"AIDECK_TOOLS_DIR":    &cfg.ToolsDir,
		"AIDECK_PROMPTS_DIR":  &cfg.PromptsDir,
		"AIDECK_WORK_DIR":     &cfg.WorkDir,
		"AIDECK_DEFAULT_TOOL": &cfg.DefaultTool,
		"AIDECK_BACKEND":      &cfg.Backend,
		"AIDECK_TMUX_SESSION": &cfg.TmuxSession,
		"AIDECK_LOG_LEVEL":    &cfg.LogLevel,
	}
	for key, target := range stringVars {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}

	if value, ok := os.LookupEnv("AIDECK_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(value, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if value, ok := os.LookupEnv("AIDECK_HISTORY_LINES"); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("AIDECK_HISTORY_LINES: %w", err)
		}
		cfg.HistoryLines = parsed
	}

	durations := map[string]*Duration{
		"AIDECK_CREATE_GRACE":   &cfg.CreateGrace,
		"AIDECK_READY_TIMEOUT":  &cfg.ReadyTimeout,
		"AIDECK_SWEEP_INTERVAL": &cfg.SweepInterval,
	}
	for key, target := range durations {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*target = Duration(parsed)
	}
	return nil
}
