package layout

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/ui/theme"
)

// Smallest terminal the chat transcript stays legible in.
const (
	MinWidth  = 64
	MinHeight = 20
)

// KeyHint is one "key action" pair in the footer.
type KeyHint struct {
	Key         string
	Description string
}

func IsTooSmall(width, height int) bool {
	return width < MinWidth || height < MinHeight
}

func RenderMinSizeMessage(width, height int) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.Text).
		Render(fmt.Sprintf("Please make the window a little bigger.\n\nNeed %d x %d, have %d x %d.",
			MinWidth, MinHeight, width, height))
}

var bar = lipgloss.NewStyle().
	Background(theme.BgCard).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(theme.Border)

// RenderHeader draws the brand on the left, title centred and status
// (usually the last quiz score) on the right.
func RenderHeader(title, status string, width int) string {
	inner := max(width-4, 0)
	left := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Render("  VidyaDost")
	right := lipgloss.NewStyle().Foreground(theme.Accent).Render(status)
	side := max(lipgloss.Width(left), lipgloss.Width(right))
	mid := max(inner-2*side, 0)

	row := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.PlaceHorizontal(side, lipgloss.Left, left),
		lipgloss.PlaceHorizontal(mid, lipgloss.Center, lipgloss.NewStyle().Foreground(theme.Text).Render(title)),
		lipgloss.PlaceHorizontal(side, lipgloss.Right, right),
	)
	return bar.Width(width).Render(row)
}

// ScoreStatus formats the last quiz score for the header; "" before any
// quiz has been taken.
func ScoreStatus(score, total int) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf("★ Last quiz %d/%d", score, total)
}

// TailLines keeps the last n lines of s so the newest chat output stays
// on screen.
func TailLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// RenderFooter lists as many hints as fit on one line, in order.
func RenderFooter(hints []KeyHint, width int) string {
	key := lipgloss.NewStyle().Foreground(theme.Text).Bold(true)
	desc := lipgloss.NewStyle().Foreground(theme.TextDim)

	room := max(width-6, 0)
	line := " "
	for _, h := range hints {
		part := "  " + key.Render(h.Key) + " " + desc.Render(h.Description)
		if lipgloss.Width(line+part) > room {
			break
		}
		line += part
	}
	return bar.Width(width).Render(line)
}

// RenderFrame stacks header, content and footer, padding content to fill
// the space between them.
func RenderFrame(header, content, footer string, width, height int) string {
	body := max(height-lipgloss.Height(header)-lipgloss.Height(footer), 0)
	content = lipgloss.NewStyle().Width(width).Height(body).MaxHeight(body).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}
