package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#1e6763")).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1e6763"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Italic(true)
	linkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	actionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1e6763")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle  = actionStyle.Foreground(lipgloss.Color("#ffffff")).Background(lipgloss.Color("#1e6763"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	inputStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#d0d0d0")).Padding(0, 1)
)
