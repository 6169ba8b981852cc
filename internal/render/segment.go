// Package render turns send options (literal message, named prompt,
// structured segments, selection fallback) into the text delivered to
// a tool session. Rendering is pure; per-tool formatting is applied
// separately at delivery time.
package render

import "fmt"

// Kind discriminates segment payloads.
type Kind string

const (
	KindText      Kind = "text"
	KindFile      Kind = "file"
	KindSelection Kind = "selection"
)

// Segment is one typed piece of an outgoing message. Text carries
// literal text (and the selected text for selection segments); File,
// Start and End address a file location for file and selection
// segments. Segments are concatenated verbatim when formatted, so
// separators are themselves text segments.
type Segment struct {
	Kind  Kind   `json:"kind" yaml:"kind"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
	Start int    `json:"start,omitempty" yaml:"start,omitempty"`
	End   int    `json:"end,omitempty" yaml:"end,omitempty"`
}

// Text builds a plain text segment.
func Text(text string) Segment {
	return Segment{Kind: KindText, Text: text}
}

// File builds a file reference. start and end are 1-based lines; zero
// start means the whole file.
func File(path string, start, end int) Segment {
	return Segment{Kind: KindFile, File: path, Start: start, End: end}
}

// Selection builds a selection segment carrying the selected text and
// optionally where it came from.
func Selection(text, file string, start, end int) Segment {
	return Segment{Kind: KindSelection, Text: text, File: file, Start: start, End: end}
}

// plain is the tool-independent rendition used for Result.Text.
func (s Segment) plain() string {
	switch s.Kind {
	case KindFile:
		if s.Start <= 0 {
			return s.File
		}
		return fmt.Sprintf("%s:%d-%d", s.File, s.Start, s.rangeEnd())
	default:
		return s.Text
	}
}

// rangeEnd normalizes a missing or inverted end line to the start.
func (s Segment) rangeEnd() int {
	if s.End < s.Start {
		return s.Start
	}
	return s.End
}
