package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// LogStyle styles the fetcher output tail.
	LogStyle = lipgloss.NewStyle().Faint(true)

	// PromptStyle styles questions asked during a run.
	PromptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))

	statusStyles = map[string]lipgloss.Style{
		// Terminal states
		"installed": lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"complete":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		// Active states
		"queued":      lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"downloading": lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		"retrying":    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		// Skipped / warning
		"skipped":   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"cancelled": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		// Failures
		"error":           lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"not-reported":    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"content-missing": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"move-failed":     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		// Pending
		"pending": lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
