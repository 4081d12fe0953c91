package cmd

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("241"))
	nameStyle  = lipgloss.NewStyle().Width(26).Foreground(lipgloss.Color("205"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func field(label, value string) string {
	if value == "" {
		value = dimStyle.Render("-")
	}
	return labelStyle.Render(label) + " " + value
}
