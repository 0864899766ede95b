// Package tui holds the terminal views: the reward card, the interactive
// order history, the orders table and the huh prompts used by sign-in and
// profile editing.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles contains lipgloss styles shared by every view.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
	Card     lipgloss.Style
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Help     lipgloss.Style
}

// Palette used by the card and the progress bar.
const (
	colorEspresso = "94"  // brown
	colorCrema    = "223" // light tan
	colorMuted    = "241" // gray
	colorSuccess  = "42"  // green
	colorError    = "196" // red

	barFull  = "#A0522D"
	barEmpty = "#5C4033"
)

// DefaultStyles returns the default lipgloss styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorEspresso)),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorCrema)),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted)),
		Value: lipgloss.NewStyle().
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted)),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorSuccess)),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorError)),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorEspresso)).
			Padding(1, 2),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorEspresso)).
			Padding(0, 1),
		Cell: lipgloss.NewStyle().
			Padding(0, 1),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted)).
			MarginTop(1),
	}
}

// DisableColor switches the default renderer to plain ASCII output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
