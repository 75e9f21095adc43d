package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the shell.
var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	promptStyle = lipgloss.NewStyle().Bold(true)

	// Agent separator.
	separatorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")) // green

	// Tool call styles.
	toolNameStyle   = lipgloss.NewStyle().Bold(true)
	toolResultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // dim gray

	// Diff lines.
	diffAddStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	diffDelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	diffHunkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	// Demo mode.
	demoRuleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	demoHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Error block style.
	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1")).
			Foreground(lipgloss.Color("1"))
)
