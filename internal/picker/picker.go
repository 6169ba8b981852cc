// Package picker implements the interactive choosers aideck-send
// offers for tools and prompts: a fuzzy-filtered single-select list.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	descStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

const maxVisibleRows = 12

// Item is one selectable row. Label is both the display text and the
// value a selection yields.
type Item struct {
	Label string
	Desc  string
}

// Model is the bubbletea model behind the picker. It keeps the full
// item set and re-derives the visible slice from the filter input on
// every keystroke.
type Model struct {
	title   string
	items   []Item
	visible []Item
	input   textinput.Model
	cursor  int
	choice  string
	aborted bool
}

func New(title string, items []Item) Model {
	input := textinput.New()
	input.Placeholder = "type to filter"
	input.Prompt = "> "
	input.CharLimit = 64
	input.Focus()

	return Model{
		title:   title,
		items:   items,
		visible: items,
		input:   input,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit

		case "enter":
			if m.cursor < len(m.visible) {
				m.choice = m.visible[m.cursor].Label
			}
			return m, tea.Quit

		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "ctrl+n":
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.visible = filterItems(m.items, m.input.Value())
	if m.cursor >= len(m.visible) {
		m.cursor = 0
	}
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString(descStyle.Render("  no matches"))
	}

	start, end := window(m.cursor, len(m.visible))
	for i := start; i < end; i++ {
		item := m.visible[i]
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Label)))
		} else {
			b.WriteString(itemStyle.Render(item.Label))
		}
		if item.Desc != "" {
			b.WriteString(descStyle.Render("  " + item.Desc))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • esc: cancel"))
	return b.String()
}

// Choice returns the selected label, or false when the picker was
// cancelled or nothing matched.
func (m Model) Choice() (string, bool) {
	if m.aborted || m.choice == "" {
		return "", false
	}
	return m.choice, true
}

// window clamps the render range to maxVisibleRows around the cursor.
func window(cursor, total int) (int, int) {
	if total <= maxVisibleRows {
		return 0, total
	}
	start := cursor - maxVisibleRows/2
	if start < 0 {
		start = 0
	}
	end := start + maxVisibleRows
	if end > total {
		end = total
		start = end - maxVisibleRows
	}
	return start, end
}

// filterItems narrows items to fuzzy matches of query, keeping the
// original order. When fuzzy matching finds nothing it falls back to
// a case-insensitive substring scan.
func filterItems(items []Item, query string) []Item {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return items
	}

	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = item.Label
	}

	ranks := fuzzy.RankFindNormalizedFold(trimmed, labels)
	if len(ranks) > 0 {
		matched := make(map[int]struct{}, len(ranks))
		for _, rank := range ranks {
			matched[rank.OriginalIndex] = struct{}{}
		}
		filtered := make([]Item, 0, len(matched))
		for i, item := range items {
			if _, ok := matched[i]; ok {
				filtered = append(filtered, item)
			}
		}
		return filtered
	}

	lower := strings.ToLower(trimmed)
	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Label), lower) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Run opens the picker full screen and blocks until a choice or
// cancel. It returns false when the user backed out.
func Run(title string, items []Item) (string, bool, error) {
	program := tea.NewProgram(New(title, items), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return "", false, err
	}
	model, ok := final.(Model)
	if !ok {
		return "", false, fmt.Errorf("unexpected picker model %T", final)
	}
	choice, ok := model.Choice()
	return choice, ok, nil
}
