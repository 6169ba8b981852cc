package tool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir reads every YAML tool definition in dir. Files that fail to
// parse or validate are skipped; their errors come back joined so the
// caller can report them without losing the good definitions.
func LoadDir(dir string) ([]Tool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tools dir: %w", err)
	}

	var tools []Tool
	var failures []error
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		t, err := loadFile(path)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		tools = append(tools, t)
	}
	return tools, errors.Join(failures...)
}

func loadFile(path string) (Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tool{}, fmt.Errorf("%s: %w", path, err)
	}

	var t Tool
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tool{}, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(t.Name) == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := t.Validate(); err != nil {
		return Tool{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func isYAMLFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
