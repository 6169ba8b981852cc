// Package prompt loads the named prompt library and renders prompt
// templates, expanding {{include name}} directives.
package prompt

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const maxIncludeDepth = 3

var (
	ErrNotFound      = errors.New("prompt not found")
	errBinaryInclude = errors.New("include file is binary")
)

// Library resolves prompt names to rendered text. Prompts live in one
// directory; {{include}} directives may also pull files from the
// include root (the working tree).
type Library struct {
	fsys        fs.FS
	dir         string
	includeRoot string
}

// Result is a rendered prompt plus every file that contributed to it.
type Result struct {
	Text  string
	Files []string
}

// NewLibrary reads prompts from dir inside fsys, or from the host
// filesystem when fsys is nil. includeRoot anchors path includes;
// empty means the current directory.
func NewLibrary(fsys fs.FS, dir, includeRoot string) *Library {
	includeRoot = strings.TrimSpace(includeRoot)
	if includeRoot == "" {
		includeRoot = "."
	}
	return &Library{fsys: fsys, dir: dir, includeRoot: includeRoot}
}

// Render resolves the named prompt and expands includes.
func (l *Library) Render(name string) (*Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("prompt name is required")
	}
	return l.renderPrompt(name, nil)
}

// Names lists the prompts available for picking, sorted and deduped.
func (l *Library) Names() ([]string, error) {
	var entries []fs.DirEntry
	var err error
	if l.fsys != nil {
		entries, err = fs.ReadDir(l.fsys, l.dir)
	} else {
		entries, err = os.ReadDir(l.dir)
	}
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		ext := strings.ToLower(path.Ext(base))
		if ext != ".tmpl" && ext != ".txt" {
			continue
		}
		seen[strings.TrimSuffix(base, path.Ext(base))] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *Library) renderPrompt(name string, stack []string) (*Result, error) {
	for _, candidate := range promptCandidates(name) {
		data, err := l.readPromptFile(candidate)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return nil, err
		}
		return l.renderFile(candidate, data, stack)
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (l *Library) renderFile(filename string, data []byte, stack []string) (*Result, error) {
	updatedStack, err := pushStack(filename, stack)
	if err != nil {
		return nil, err
	}
	files := []string{filename}
	if !strings.HasSuffix(strings.ToLower(filename), ".tmpl") {
		return &Result{Text: string(data), Files: files}, nil
	}

	reader := bufio.NewReader(bytes.NewReader(data))
	var output bytes.Buffer
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, readErr
		}
		if line != "" {
			if includeName, ok := parseIncludeDirective(line); ok {
				included, found, includeErr := l.renderInclude(includeName, updatedStack)
				if includeErr != nil {
					return nil, includeErr
				}
				if found {
					output.WriteString(included.Text)
					files = append(files, included.Files...)
				}
			} else {
				output.WriteString(line)
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	return &Result{Text: output.String(), Files: files}, nil
}

// renderInclude resolves one include target. Missing or binary targets
// drop out silently so a prompt renders with whatever it can.
func (l *Library) renderInclude(name string, stack []string) (*Result, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, false, nil
	}
	if isPathInclude(trimmed) {
		cleaned, ok := cleanIncludePath(trimmed)
		if !ok {
			return nil, false, nil
		}
		data, err := readTextFile(filepath.Join(l.includeRoot, filepath.FromSlash(cleaned)))
		if err != nil {
			if isNotExist(err) || errors.Is(err, errBinaryInclude) {
				return nil, false, nil
			}
			return nil, false, err
		}
		result, err := l.renderFile(cleaned, data, stack)
		if err != nil {
			return nil, false, err
		}
		return result, true, nil
	}

	for _, candidate := range includeCandidates(trimmed) {
		cleaned, ok := cleanIncludePath(candidate)
		if !ok {
			continue
		}
		data, err := l.readPromptInclude(cleaned)
		if err != nil {
			if isNotExist(err) || errors.Is(err, errBinaryInclude) {
				continue
			}
			return nil, false, err
		}
		result, err := l.renderFile(cleaned, data, stack)
		if err != nil {
			return nil, false, err
		}
		return result, true, nil
	}
	return nil, false, nil
}

func (l *Library) readPromptFile(filename string) ([]byte, error) {
	if l.fsys != nil {
		return fs.ReadFile(l.fsys, path.Join(l.dir, filename))
	}
	return os.ReadFile(filepath.Join(l.dir, filename))
}

func (l *Library) readPromptInclude(cleaned string) ([]byte, error) {
	if l.fsys != nil {
		data, err := fs.ReadFile(l.fsys, path.Join(l.dir, cleaned))
		if err != nil {
			return nil, err
		}
		if !isTextData(data) {
			return nil, errBinaryInclude
		}
		return data, nil
	}
	return readTextFile(filepath.Join(l.dir, cleaned))
}

func promptCandidates(name string) []string {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".tmpl" || ext == ".txt" {
		return []string{name}
	}
	return []string{name + ".tmpl", name + ".txt"}
}

func includeCandidates(name string) []string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "" {
		return nil
	}
	ext := strings.ToLower(path.Ext(cleaned))
	if ext == ".tmpl" || ext == ".txt" || ext == ".md" {
		return []string{cleaned}
	}
	return []string{cleaned + ".tmpl", cleaned + ".md", cleaned + ".txt"}
}

func isPathInclude(name string) bool {
	return strings.HasPrefix(name, "./") || strings.Contains(name, "/")
}

// parseIncludeDirective matches a line of the form "{{include name}}".
func parseIncludeDirective(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, "{{"), "}}"))
	fields := strings.Fields(inner)
	if len(fields) < 2 || fields[0] != "include" {
		return "", false
	}
	return strings.Join(fields[1:], " "), true
}

func pushStack(filename string, stack []string) ([]string, error) {
	if len(stack) >= maxIncludeDepth {
		chain := append(stack, filename)
		return nil, fmt.Errorf("prompt include depth exceeded (%d): %s", maxIncludeDepth, strings.Join(chain, " -> "))
	}
	for _, entry := range stack {
		if entry == filename {
			chain := append(stack, filename)
			return nil, fmt.Errorf("prompt include cycle detected: %s", strings.Join(chain, " -> "))
		}
	}
	return append(stack, filename), nil
}

func cleanIncludePath(name string) (string, bool) {
	cleaned := filepath.Clean(strings.TrimSpace(name))
	if cleaned == "." || cleaned == "" {
		return "", false
	}
	if filepath.IsAbs(cleaned) {
		return "", false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(cleaned), true
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

func readTextFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isTextData(data) {
		return nil, errBinaryInclude
	}
	return data, nil
}

func isTextData(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	nonPrintable := 0
	for _, b := range data {
		if b == 0 {
			return false
		}
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || (b >= 0x7f && b < 0xa0) {
			nonPrintable++
		}
	}
	return nonPrintable*5 <= len(data)
}
