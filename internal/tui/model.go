// Package tui renders a watch session in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Cypher-0-shift/JurAI/internal/agent"
	"github.com/Cypher-0-shift/JurAI/internal/domain"
	"github.com/Cypher-0-shift/JurAI/internal/session"
	"github.com/Cypher-0-shift/JurAI/internal/trace"
)

// Source is the session being watched.
type Source interface {
	View() session.View
	Completed() <-chan struct{}
}

// Subscriber is anything that emits trace updates.
type Subscriber interface {
	Subscribe(l trace.Listener)
}

// Updates returns a channel fed by s. Updates are dropped while the channel
// is full; the model re-reads the whole view on every update anyway.
func Updates(s Subscriber) <-chan domain.Update {
	ch := make(chan domain.Update, 64)
	s.Subscribe(func(u domain.Update) {
		select {
		case ch <- u:
		default:
		}
	})
	return ch
}

type updateMsg struct{}

type completedMsg struct{}

// Model is the Bubble Tea model of the watch view.
type Model struct {
	source         Source
	updates        <-chan domain.Update
	exitOnComplete bool

	view      session.View
	completed bool
	follow    bool

	spinner  spinner.Model
	viewport viewport.Model
	width    int
	height   int
}

// Option configures a Model.
type Option func(*Model)

// WithExitOnComplete quits the program once the session completes.
func WithExitOnComplete() Option {
	return func(m *Model) {
		m.exitOnComplete = true
	}
}

// New creates a model watching source.
func New(source Source, updates <-chan domain.Update, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorActive)

	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = true

	m := Model{
		source:   source,
		updates:  updates,
		follow:   true,
		spinner:  sp,
		viewport: vp,
		view:     source.View(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForUpdate(m.updates),
		waitForCompletion(m.source.Completed()),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = bodyWidth(msg.Width)
		m.viewport.Height = bodyHeight(msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateMsg:
		m.refresh()
		return m, waitForUpdate(m.updates)

	case completedMsg:
		m.completed = true
		m.refresh()
		if m.exitOnComplete {
			return m, tea.Quit
		}
		return m, nil

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
}

func (m *Model) refresh() {
	m.view = m.source.View()
	m.viewport.SetContent(renderAgents(m.view.Trace, m.spinner.View(), m.viewport.Width))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	title := titleStyle.Render("JurAI Watch")
	status := phaseStyle(m.view.Phase).Render(strings.ToUpper(string(m.view.Phase)))

	meta := metaStyle.Render(fmt.Sprintf("key=%s  mode=%s  run=%s",
		orDash(m.view.Key), m.view.Mode, orDash(m.view.RunID)))

	headline := m.view.Trace.Headline
	if headline == "" {
		headline = "waiting for the pipeline..."
	}
	if m.view.Trace.Active != domain.AgentNone && !m.completed {
		headline = m.spinner.View() + " " + headline
	}

	body := bodyStyle.Width(bodyWidth(m.width)).Render(m.viewport.View())

	return strings.Join([]string{
		title + " " + status,
		meta,
		headlineStyle.Render(headline),
		body,
		m.footer(),
	}, "\n")
}

func (m Model) footer() string {
	switch {
	case m.view.LastError != "" && m.completed:
		return errorStyle.Render("error: " + m.view.LastError + "  q: quit")
	case m.completed && m.view.Outcome != nil:
		return footerStyle.Render(fmt.Sprintf("completed (%s), %d entries  q: quit", m.view.Outcome.Reason, m.view.Outcome.Entries))
	case m.completed:
		return footerStyle.Render("completed  q: quit")
	}
	follow := "on"
	if !m.follow {
		follow = "off"
	}
	return footerStyle.Render("q: quit  f: follow " + follow + "  ↑/↓: scroll")
}

func renderAgents(state domain.TraceState, spin string, width int) string {
	var b strings.Builder
	for i, id := range domain.Agents {
		if i > 0 {
			b.WriteString("\n")
		}
		info, _ := agent.Lookup(id)
		header := agentStyle.Render(info.Name) + " " + titleDimStyle.Render(info.Title)
		if state.Active == id {
			header = agentActiveStyle.Render(info.Name) + " " + titleDimStyle.Render(info.Title) + " " + spin
		}
		b.WriteString(header)
		b.WriteString("\n")

		entries := state.Agents[id]
		if len(entries) == 0 {
			b.WriteString(entryDimStyle.Render("  no thoughts yet"))
			b.WriteString("\n")
			continue
		}
		for _, e := range entries {
			line := "  · " + trimForView(e.Text, width-4)
			if e.Source == domain.SourceHistory {
				line = entryDimStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func waitForUpdate(in <-chan domain.Update) tea.Cmd {
	if in == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-in; !ok {
			return nil
		}
		return updateMsg{}
	}
}

func waitForCompletion(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return completedMsg{}
	}
}

func trimForView(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func bodyWidth(terminalWidth int) int {
	if terminalWidth <= 0 {
		return 80
	}
	w := terminalWidth - 2
	if w < 40 {
		return 40
	}
	return w
}

func bodyHeight(terminalHeight int) int {
	h := terminalHeight - 7
	if h < 6 {
		return 6
	}
	return h
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
