// Package live is the interactive search view: results refresh on every
// keystroke by searching the in-memory store.
package live

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/motti-landau/kvstore"
)

// Searcher is the part of *kvstore.Store the view needs.
type Searcher interface {
	Search(query string, target kvstore.Target, limit int) []kvstore.Match
}

var (
	keyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#BF4F2D")).Bold(true)
	tagStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#66757D"))
	hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#66757D")).Italic(true)
)

type Model struct {
	input   textinput.Model
	src     Searcher
	target  kvstore.Target
	limit   int
	matches []kvstore.Match
	width   int
	done    bool
}

func New(src Searcher, target kvstore.Target, limit int) Model {
	in := textinput.New()
	in.Prompt = "Query: "
	in.Placeholder = "type to search"
	in.Focus()
	return Model{input: in, src: src, target: target, limit: limit}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyEnter, tea.KeyCtrlC, tea.KeyCtrlD:
			m.done = true
			return m, tea.Quit
		case tea.KeyDelete:
			m.input.SetValue("")
			m.refresh()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.refresh()
	}
	return m, cmd
}

func (m *Model) refresh() {
	q := m.input.Value()
	if strings.TrimSpace(q) == "" {
		m.matches = nil
		return
	}
	m.matches = m.src.Search(q, m.target, m.limit)
}

// Query returns the current input.
func (m Model) Query() string { return m.input.Value() }

// Matches returns the results shown for Query.
func (m Model) Matches() []kvstore.Match { return m.matches }

func (m Model) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteByte('\n')

	switch {
	case strings.TrimSpace(m.input.Value()) == "":
		b.WriteString(hintStyle.Render("Type to search (Esc to exit)."))
		b.WriteByte('\n')
	case len(m.matches) == 0:
		b.WriteString("No matches found.\n")
	default:
		for _, mt := range m.matches {
			b.WriteString(m.line(mt))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m Model) line(mt kvstore.Match) string {
	s := keyStyle.Render(mt.Key) + " = " + firstLine(mt.Record.Value)
	if len(mt.Record.Tags) > 0 {
		s += " " + tagStyle.Render("["+strings.Join(mt.Record.Tags, ", ")+"]")
	}
	if m.width > 0 {
		s = lipgloss.NewStyle().MaxWidth(m.width).Render(s)
	}
	return s
}

func firstLine(v string) string {
	if i := strings.IndexByte(v, '\n'); i >= 0 {
		return v[:i] + " …"
	}
	return v
}

// Run drives the view until the user quits or ctx ends.
func Run(ctx context.Context, src Searcher, target kvstore.Target, limit int, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(New(src, target, limit),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := p.Run()
	return err
}
