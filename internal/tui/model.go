// Package tui is the interactive chat front end: a question box, the
// generated answer and the sources it was grounded on.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"groundedrag/internal/domain"
	"groundedrag/internal/summarizer"
	"groundedrag/internal/textutil"
)

// Asker is the TUI-facing subset of the RAG service.
type Asker interface {
	Ask(ctx context.Context, query string) (*domain.Answer, error)
}

type answerMsg struct {
	answer *domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx      context.Context
	service  Asker
	input    textinput.Model
	viewport viewport.Model
	answer   *domain.Answer
	summary  string
	status   string
	cursor   int
	ready    bool
	busy     bool
}

// New creates a chat model. Questions are asked with ctx.
func New(ctx context.Context, service Asker, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, service: service, input: ti, viewport: vp, summary: summary, status: "Index ready. Ask away."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		// header, summary, status and one spacer line
		reserved := 4 + qh
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.answer = msg.answer
		m.cursor = 0
		m.status = fmt.Sprintf("%d sources, %d tokens. ↑/↓ to browse sources.", len(msg.answer.Sources), msg.answer.Usage.TotalTokens)
		m.refresh()
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Thinking about %q...", q)
			m.input.Reset()
			return m, m.ask(q)
		case "down":
			if n := m.sources(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.refresh()
				return m, nil
			}
		case "up":
			if n := m.sources(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.refresh()
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		a, err := m.service.Ask(m.ctx, q)
		return answerMsg{answer: a, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Grounded RAG")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) sources() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.Sources)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render())
}

func (m Model) render() string {
	if m.answer == nil {
		return "No answer yet."
	}
	width := max(10, m.viewport.Width-resultBoxStyle.GetHorizontalFrameSize())
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	b.WriteString(answerTitleStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(wrap.Render(strings.TrimSpace(m.answer.Text)))
	if len(m.answer.Sources) == 0 {
		return b.String()
	}
	r := m.answer.Sources[m.cursor]
	b.WriteString("\n\n")
	b.WriteString(sourceTitleStyle.Render(fmt.Sprintf("Source %d/%d  %s  score=%.3f",
		m.cursor+1, len(m.answer.Sources), r.Chunk.Source, r.Score)))
	b.WriteString("\n")
	b.WriteString(wrap.Render(highlightBestSentence(r.Chunk.Text, m.answer.Query)))
	return b.String()
}

var (
	resultBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// highlightBestSentence renders text one sentence after another with the
// sentence closest to query emphasised.
func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	best := summarizer.BestSentence(text, query)
	done := false
	for i, s := range sentences {
		if !done && s == best {
			sentences[i] = highlightStyle.Render(s)
			done = true
		}
	}
	return strings.Join(sentences, " ")
}
