// Package scores lists finished quizzes, newest first.
package scores

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/router"
	"github.com/vidyadost/vidyadost/internal/screen"
	"github.com/vidyadost/vidyadost/internal/store"
	"github.com/vidyadost/vidyadost/internal/ui/components"
	"github.com/vidyadost/vidyadost/internal/ui/layout"
	"github.com/vidyadost/vidyadost/internal/ui/theme"
)

// Limit is how many results the screen loads.
const Limit = 50

// Lister reads stored quiz results.
type Lister interface {
	List(ctx context.Context, limit int) ([]store.QuizResultRecord, error)
}

type scoresLoadedMsg struct {
	Results []store.QuizResultRecord
	Err     error
}

// ScoresScreen displays past quiz results.
type ScoresScreen struct {
	lister   Lister
	results  []store.QuizResultRecord
	selected int
	loaded   bool
	errMsg   string
}

var _ screen.Screen = (*ScoresScreen)(nil)
var _ screen.KeyHintProvider = (*ScoresScreen)(nil)

// New creates a new ScoresScreen.
func New(lister Lister) *ScoresScreen {
	return &ScoresScreen{lister: lister}
}

func (s *ScoresScreen) Init() tea.Cmd {
	return func() tea.Msg {
		recs, err := s.lister.List(context.Background(), Limit)
		return scoresLoadedMsg{Results: recs, Err: err}
	}
}

func (s *ScoresScreen) Title() string {
	return "Quiz scores"
}

func (s *ScoresScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *ScoresScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case scoresLoadedMsg:
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
		} else {
			s.results = msg.Results
		}
		s.loaded = true
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
		case "down", "j":
			if s.selected < len(s.results)-1 {
				s.selected++
			}
		}
	}
	return s, nil
}

func (s *ScoresScreen) View(width, height int) string {
	if s.errMsg != "" {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.Error).
			Render(fmt.Sprintf("\n\nError: %s", s.errMsg))
	}
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading scores...")
	}
	if len(s.results) == 0 {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("\n\n  No quizzes yet. Finish a lesson to take one!")
	}

	var b strings.Builder
	b.WriteString("\n")
	for i, r := range s.results {
		prefix := "  "
		if i == s.selected {
			prefix = "> "
		}
		line := fmt.Sprintf("%s%s  %-28s %d/%d  ",
			prefix, r.Timestamp.Format("Jan 02, 2006 15:04"), truncate(r.Topic, 28), r.Score, r.Total)

		style := lipgloss.NewStyle().Foreground(theme.Text)
		if i == s.selected {
			style = style.Foreground(theme.Primary).Bold(true)
		}
		bar := components.NewProgressBar(r.Score, r.Total, false, 14)
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, style.Render(line)+bar.View()))
		b.WriteString("\n")
	}
	return layout.TailLines(b.String(), height)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
