package ui

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette.
const (
	ColorViolet    = "135"
	ColorVioletDim = "97"
	ColorWhite     = "255"
	ColorGray      = "245"
	ColorDarkGray  = "238"
	ColorRed       = "196"
	ColorYellow    = "220"
)

// Styles holds the lipgloss styles the TUI renders with.
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	StageDone lipgloss.Style
	StageRun  lipgloss.Style
	StageWait lipgloss.Style
	Progress  lipgloss.Style
	File      lipgloss.Style
	Stat      lipgloss.Style
	StatLabel lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Success   lipgloss.Style
	Border    lipgloss.Style
	Muted     lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorViolet)),
		Subtitle:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		StageDone: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorVioletDim)),
		StageRun:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorViolet)),
		StageWait: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Progress:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorViolet)),
		File:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Stat:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		StatLabel: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Success:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorViolet)),
		Border:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorDarkGray)).Padding(0, 1),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns an uncolored style set for NO_COLOR terminals.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:     plain.Bold(true),
		Subtitle:  plain,
		StageDone: plain,
		StageRun:  plain.Bold(true),
		StageWait: plain,
		Progress:  plain,
		File:      plain,
		Stat:      plain.Bold(true),
		StatLabel: plain,
		Error:     plain.Bold(true),
		Warning:   plain,
		Success:   plain.Bold(true),
		Border:    plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
		Muted:     plain,
	}
}

// GetStyles picks the style set for the environment.
func GetStyles(noColor bool) Styles {
	if noColor || DetectNoColor() {
		return NoColorStyles()
	}
	return DefaultStyles()
}
