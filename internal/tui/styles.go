package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

var (
	colorActive = lipgloss.Color("#FF9F43")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EAF3FF")).
			Background(lipgloss.Color("#1E3A8A")).
			Padding(0, 1)

	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8C7FF"))
	headlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5EEFF"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86B"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FB7185"))

	bodyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#1D4ED8")).
			Padding(0, 1)

	agentStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#60A5FA"))
	agentActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(colorActive)
	titleDimStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6B7280"))
	entryDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

func phaseStyle(phase domain.SessionPhase) lipgloss.Style {
	s := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#0B1B36")).
		Padding(0, 1)
	switch phase {
	case domain.PhaseRunning:
		return s.Background(colorActive)
	case domain.PhaseCompleted:
		return s.Background(lipgloss.Color("#60A5FA"))
	default:
		return s.Background(lipgloss.Color("#6B7280"))
	}
}
