package theme

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Palette. Saffron and leaf green carry the brand; the rest keeps long
// answers readable on dark terminals.
var (
	Primary   = lipgloss.Color("#F59E0B") // Saffron
	Secondary = lipgloss.Color("#10B981") // Leaf
	Accent    = lipgloss.Color("#38BDF8") // Sky
	Success   = lipgloss.Color("#22C55E")
	Error     = lipgloss.Color("#F43F5E")
	Text      = lipgloss.Color("#F8FAFC")
	TextDim   = lipgloss.Color("#94A3B8")
	BgCard    = lipgloss.Color("#1E293B")
	Border    = lipgloss.Color("#334155")
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		Align(lipgloss.Center)

	Card = lipgloss.NewStyle().
		Background(BgCard).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(1, 2)
)

// Chat transcript roles.
var (
	Learner   = lipgloss.NewStyle().Foreground(Accent).Bold(true)
	TutorName = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	Topic     = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	Muted     = lipgloss.NewStyle().Foreground(TextDim).Italic(true)
	Notice    = lipgloss.NewStyle().Foreground(Error)
)

// Rule is a horizontal separator width cells wide.
func Rule(width int) string {
	return lipgloss.NewStyle().Foreground(Border).Render(strings.Repeat("─", max(width, 0)))
}
