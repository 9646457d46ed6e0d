package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorMatch   = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#F2C14E"}
	colorError   = lipgloss.AdaptiveColor{Light: "#D32F2F", Dark: "#FF5F56"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#5AF78E"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#6C6C6C"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	matchStyle   = lipgloss.NewStyle().Bold(true).Reverse(true).Foreground(colorMatch)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle     = lipgloss.NewStyle().Faint(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)
