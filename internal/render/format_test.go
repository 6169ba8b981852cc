package render

import (
	"testing"

	"aideck/internal/tool"
)

func TestFormatSegments(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		spec     tool.FormatSpec
		want     string
	}{
		{
			name:     "text passthrough",
			segments: []Segment{Text("hello")},
			want:     "hello",
		},
		{
			name:     "file default template",
			segments: []Segment{File("pkg/a.go", 0, 0)},
			want:     "pkg/a.go",
		},
		{
			name:     "file custom template",
			segments: []Segment{File("pkg/a.go", 0, 0)},
			spec:     tool.FormatSpec{File: "@{file}"},
			want:     "@pkg/a.go",
		},
		{
			name:     "file range template",
			segments: []Segment{File("pkg/a.go", 3, 9)},
			spec:     tool.FormatSpec{File: "@{file}", FileRange: "@{file}#L{start}-{end}"},
			want:     "@pkg/a.go#L3-9",
		},
		{
			name:     "file range default template",
			segments: []Segment{File("pkg/a.go", 5, 0)},
			want:     "pkg/a.go:5-5",
		},
		{
			name:     "selection default is raw text",
			segments: []Segment{Selection("var x = 1", "pkg/a.go", 4, 4)},
			want:     "var x = 1",
		},
		{
			name:     "selection template with location",
			segments: []Segment{Selection("var x = 1", "pkg/a.go", 4, 6)},
			spec:     tool.FormatSpec{Selection: "{file}:{start}-{end}\n{text}"},
			want:     "pkg/a.go:4-6\nvar x = 1",
		},
		{
			name: "segments concatenate verbatim",
			segments: []Segment{
				Text("explain "),
				File("pkg/a.go", 3, 9),
				Text(" please"),
			},
			spec: tool.FormatSpec{FileRange: "@{file}#L{start}-{end}"},
			want: "explain @pkg/a.go#L3-9 please",
		},
		{
			name:     "empty input",
			segments: nil,
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSegments(tt.segments, tt.spec); got != tt.want {
				t.Fatalf("FormatSegments = %q, want %q", got, tt.want)
			}
		})
	}
}
