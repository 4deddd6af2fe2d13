package tui

import (
	"charm.land/lipgloss/v2"
)

// Styles contains all lipgloss styles for the dashboard.
type Styles struct {
	Tab       lipgloss.Style
	TabActive lipgloss.Style
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	Score     lipgloss.Style
	ChunkName lipgloss.Style
	Source    lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Tab:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		TabActive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Score:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		ChunkName: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Source:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}
