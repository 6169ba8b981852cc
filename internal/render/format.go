package render

import (
	"strconv"
	"strings"

	"aideck/internal/tool"
)

const (
	defaultFileTemplate      = "{file}"
	defaultFileRangeTemplate = "{file}:{start}-{end}"
	defaultSelectionTemplate = "{text}"
)

// FormatSegments applies a tool's formatting templates to render
// segments into the literal string the tool receives. Segments are
// concatenated with no separator. Unset templates fall back to plain
// renditions.
func FormatSegments(segments []Segment, spec tool.FormatSpec) string {
	var out strings.Builder
	for _, segment := range segments {
		out.WriteString(formatSegment(segment, spec))
	}
	return out.String()
}

func formatSegment(segment Segment, spec tool.FormatSpec) string {
	switch segment.Kind {
	case KindFile:
		template := spec.File
		if segment.Start > 0 {
			template = spec.FileRange
			if template == "" {
				template = defaultFileRangeTemplate
			}
		} else if template == "" {
			template = defaultFileTemplate
		}
		return expand(template, segment)
	case KindSelection:
		template := spec.Selection
		if template == "" {
			template = defaultSelectionTemplate
		}
		return expand(template, segment)
	default:
		return segment.Text
	}
}

func expand(template string, segment Segment) string {
	replacer := strings.NewReplacer(
		"{file}", segment.File,
		"{start}", strconv.Itoa(segment.Start),
		"{end}", strconv.Itoa(segment.rangeEnd()),
		"{text}", segment.Text,
	)
	return replacer.Replace(template)
}
