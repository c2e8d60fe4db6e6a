package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/ui/theme"
)

// ProgressBar draws done out of total as a bar, optionally followed by a
// "done/total" count.
type ProgressBar struct {
	Done      int
	Total     int
	ShowCount bool
	Width     int
}

func NewProgressBar(done, total int, showCount bool, width int) ProgressBar {
	return ProgressBar{Done: done, Total: total, ShowCount: showCount, Width: width}
}

// Fraction is Done/Total clamped to [0, 1]; an empty total is 0.
func (p ProgressBar) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(max(float64(p.Done)/float64(p.Total), 0), 1)
}

func (p ProgressBar) View() string {
	count := ""
	if p.ShowCount {
		count = fmt.Sprintf("  %d/%d", p.Done, p.Total)
	}

	barWidth := max(p.Width-lipgloss.Width(count), 4)
	filled := int(float64(barWidth) * p.Fraction())

	out := lipgloss.NewStyle().Background(theme.Secondary).Render(strings.Repeat(" ", filled)) +
		lipgloss.NewStyle().Background(theme.Border).Render(strings.Repeat(" ", barWidth-filled))
	if count != "" {
		out += lipgloss.NewStyle().Foreground(theme.TextDim).Render(count)
	}
	return out
}
