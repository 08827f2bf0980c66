package main

import "github.com/charmbracelet/lipgloss"

// Terminal styles shared by the subcommands.
var styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
	Label:   lipgloss.NewStyle().Bold(true),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
	Muted:   lipgloss.NewStyle().Faint(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#2a3850")).
		Padding(0, 1).
		Width(78),
}
