package render

import (
	"fmt"
	"strings"

	"aideck/internal/prompt"
)

// Options names the message sources for one send. The sources are
// alternatives, not composed; precedence is Text, then Prompt, then
// Msg, then Selection. A nil Text slice means "no structured text";
// an empty non-nil slice is an explicit blank line.
type Options struct {
	Msg       string
	Prompt    string
	Text      []Segment
	Selection string
}

// Result is the rendered message. Text is the tool-independent
// rendition used for previews and the nothing-to-send check; Segments
// feed the per-tool formatter at delivery time. An empty Text means
// there was nothing to render; a lone "\n" is an explicit blank line.
type Result struct {
	Text     string
	Segments []Segment
}

// Renderer resolves prompts through a library and normalizes options
// into results. A nil library renders everything except Prompt.
type Renderer struct {
	prompts *prompt.Library
}

func New(prompts *prompt.Library) *Renderer {
	return &Renderer{prompts: prompts}
}

// PromptNames lists the prompts the library offers, for pickers.
func (r *Renderer) PromptNames() ([]string, error) {
	if r.prompts == nil {
		return nil, nil
	}
	return r.prompts.Names()
}

// Render is pure: it never touches sessions or terminals.
func (r *Renderer) Render(opts Options) (*Result, error) {
	segments, explicit, err := r.resolve(opts)
	if err != nil {
		return nil, err
	}

	var plain strings.Builder
	for _, segment := range segments {
		plain.WriteString(segment.plain())
	}
	text := plain.String()
	if (text != "" || explicit) && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return &Result{Text: text, Segments: segments}, nil
}

func (r *Renderer) resolve(opts Options) (segments []Segment, explicit bool, err error) {
	switch {
	case opts.Text != nil:
		out := make([]Segment, len(opts.Text))
		copy(out, opts.Text)
		return out, true, nil
	case strings.TrimSpace(opts.Prompt) != "":
		if r.prompts == nil {
			return nil, false, fmt.Errorf("prompt %q: no prompt library configured", opts.Prompt)
		}
		rendered, err := r.prompts.Render(strings.TrimSpace(opts.Prompt))
		if err != nil {
			return nil, false, err
		}
		if rendered.Text == "" {
			return nil, false, nil
		}
		return []Segment{Text(rendered.Text)}, false, nil
	case opts.Msg != "":
		return []Segment{Text(opts.Msg)}, false, nil
	case opts.Selection != "":
		return []Segment{Selection(opts.Selection, "", 0, 0)}, false, nil
	default:
		return nil, false, nil
	}
}
