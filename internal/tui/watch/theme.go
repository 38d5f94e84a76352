// Package watch is the live terminal view of a running bridge: listener
// session, per-command counters, and the raw event stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps every style of the watch view in one place.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusIdle    lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	PulseOn  lipgloss.Style
	PulseOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	accent := lipgloss.Color("#5FAFD7")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#87D787")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
		StatusIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EEEEEE")).
			Padding(0, 1),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF5F")),

		PulseOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#87D787")),
		PulseOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#3A3A3A")),
	}
}
