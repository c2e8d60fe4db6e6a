package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/ui/theme"
)

// Choice is one quiz question with lettered options. The learner moves
// with up/down and submits with enter, or picks directly with 1-N or the
// option letter.
type Choice struct {
	Question string
	Options  []string
	Selected int
	chosen   int
}

func NewChoice(question string, options []string) Choice {
	return Choice{Question: question, Options: options, chosen: -1}
}

// Chosen reports the submitted option, if any.
func (c Choice) Chosen() (int, bool) {
	return c.chosen, c.chosen >= 0
}

func (c Choice) Update(msg tea.Msg) (Choice, tea.Cmd) {
	k, ok := msg.(tea.KeyPressMsg)
	if !ok || c.chosen >= 0 {
		return c, nil
	}

	key := strings.ToLower(k.String())
	if i, ok := c.direct(key); ok {
		c.Selected, c.chosen = i, i
		return c, nil
	}
	switch key {
	case "up", "k":
		c.Selected = max(c.Selected-1, 0)
	case "down", "j":
		c.Selected = min(c.Selected+1, len(c.Options)-1)
	case "enter":
		if len(c.Options) > 0 {
			c.chosen = c.Selected
		}
	}
	return c, nil
}

// direct maps "1".."9" and "a".."i" to an option index.
func (c Choice) direct(key string) (int, bool) {
	if len(key) != 1 {
		return 0, false
	}
	i := -1
	switch ch := key[0]; {
	case ch >= '1' && ch <= '9':
		i = int(ch - '1')
	case ch >= 'a' && ch <= 'i':
		i = int(ch - 'a')
	}
	return i, i >= 0 && i < len(c.Options)
}

func (c Choice) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Text).Bold(true).Render(c.Question))
	b.WriteString("\n\n")

	for i, opt := range c.Options {
		line := fmt.Sprintf("  %c)  %s", 'A'+i, opt)
		style := lipgloss.NewStyle().Foreground(theme.Text)
		if i == c.Selected {
			line = "▸" + line[1:]
			style = style.Foreground(theme.Primary).Bold(true)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
