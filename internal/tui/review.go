// Package tui is the terminal surface of the review workflow.
package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/raaihank/doc-sentinel/internal/review"
)

type mode int

const (
	modeBrowse mode = iota
	modeSearch
)

// Model drives a review.Workflow that is awaiting review. The workflow is
// shared, so the caller reads the final text from it after the program exits.
type Model struct {
	workflow *review.Workflow
	input    textinput.Model
	mode     mode
	status   string
	err      error
	quitting bool
	width    int
}

// New creates a review model. The workflow must already be redacted.
func New(wf *review.Workflow) Model {
	ti := textinput.New()
	ti.Placeholder = "search text"
	ti.Prompt = "/ "
	ti.CharLimit = 200
	ti.Width = 40

	return Model{workflow: wf, input: ti}
}

// Confirmed reports whether the reviewer confirmed the document
func (m Model) Confirmed() bool {
	return m.workflow.State() == review.Confirmed
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-10, 10)
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode == modeSearch {
			return m.updateSearch(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.mode = modeBrowse
		m.input.Blur()
		session, err := m.workflow.Search(m.input.Value())
		if m.setErr(err) {
			return m, nil
		}
		if session.Exhausted() {
			m.status = fmt.Sprintf("no matches for %q", session.Query())
		} else {
			m.status = fmt.Sprintf("%d matches for %q", session.Len(), session.Query())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status, m.err = "", nil

	switch msg.String() {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "/":
		m.mode = modeSearch
		m.input.SetValue("")
		return m, m.input.Focus()
	case "n":
		m.setErr(m.workflow.Navigate(review.Forward))
	case "N":
		m.setErr(m.workflow.Navigate(review.Backward))
	case "d":
		c, ok, err := m.workflow.Current()
		if m.setErr(err) {
			return m, nil
		}
		if !ok {
			m.status = "nothing left to delete"
			return m, nil
		}
		if !m.setErr(m.workflow.DeleteCurrent()) {
			m.status = fmt.Sprintf("deleted %q at %d", c.Match, c.Offset)
		}
	case "c":
		if _, err := m.workflow.Confirm(); m.setErr(err) {
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// setErr records err for display and reports whether there was one
func (m *Model) setErr(err error) bool {
	if err == nil {
		return false
	}
	m.err = err
	if errors.Is(err, review.ErrNoSession) {
		m.err = errors.New("no active search, press / first")
	}
	return true
}

func (m Model) View() string {
	if m.quitting {
		if m.Confirmed() {
			return successStyle.Render("confirmed") + "\n"
		}
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("doc-sentinel review"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s  %d chars", m.workflow.State(), len([]rune(m.workflow.Text())))))
	b.WriteString("\n")

	if counts := m.workflow.Counts(); len(counts) > 0 {
		parts := make([]string, 0, len(counts))
		for _, lc := range counts {
			parts = append(parts, fmt.Sprintf("%s %d", lc.Label, lc.Count))
		}
		b.WriteString(dimStyle.Render("redacted: " + strings.Join(parts, ", ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.sessionView())
	b.WriteString("\n")

	switch {
	case m.mode == modeSearch:
		b.WriteString(m.input.View())
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	case m.status != "":
		b.WriteString(mutedStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("/ search  n next  N prev  d delete  c confirm  q quit"))
	return b.String()
}

func (m Model) sessionView() string {
	session, ok := m.workflow.Session()
	if !ok {
		return mutedStyle.Render("press / to search the redacted text")
	}
	c, ok, err := m.workflow.Current()
	if err != nil || !ok {
		return fmt.Sprintf("/%s  %s", session.Query(), mutedStyle.Render("[no matches]"))
	}

	header := fmt.Sprintf("/%s  %s", session.Query(), mutedStyle.Render(fmt.Sprintf("[%d/%d] offset %d", c.Ordinal, c.Total, c.Offset)))
	body := flatten(c.Before) + matchStyle.Render(flatten(c.Match)) + flatten(c.After)
	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	return header + "\n" + panel.Render(body)
}

// flatten keeps the context window on one line
func flatten(s string) string {
	return strings.NewReplacer("\r\n", "↵", "\n", "↵", "\t", " ").Replace(s)
}

// Run runs the review program on in/out until the reviewer confirms or quits
func Run(wf *review.Workflow, in io.Reader, out io.Writer) (bool, error) {
	final, err := tea.NewProgram(New(wf), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return false, fmt.Errorf("review terminal failed: %w", err)
	}
	return final.(Model).Confirmed(), nil
}
