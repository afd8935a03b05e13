package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	validStyle  = lipgloss.NewStyle().Foreground(successColor)
	dirtyStyle  = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	stateStyles = map[string]lipgloss.Style{
		"loading": lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		"viewing": lipgloss.NewStyle().Foreground(successColor),
		"editing": lipgloss.NewStyle().Foreground(warningColor),
		"saving":  lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		"closed":  lipgloss.NewStyle().Foreground(mutedColor),
	}
)
