// Package topics is the start screen: pick a grade, subject, unit and
// topic to open a tutoring session.
package topics

import (
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/catalog"
	"github.com/vidyadost/vidyadost/internal/router"
	"github.com/vidyadost/vidyadost/internal/screen"
	"github.com/vidyadost/vidyadost/internal/screens/chat"
	"github.com/vidyadost/vidyadost/internal/screens/scores"
	"github.com/vidyadost/vidyadost/internal/tutor"
	"github.com/vidyadost/vidyadost/internal/ui/components"
	"github.com/vidyadost/vidyadost/internal/ui/layout"
	"github.com/vidyadost/vidyadost/internal/ui/theme"
)

// TopicsScreen lists every catalog topic followed by the scores and exit
// entries.
type TopicsScreen struct {
	menu    components.Menu
	profile tutor.Profile
}

var _ screen.Screen = (*TopicsScreen)(nil)
var _ screen.KeyHintProvider = (*TopicsScreen)(nil)

// New creates a TopicsScreen. results may be nil, which hides the scores
// entry.
func New(cat *catalog.Catalog, t chat.Tutor, sp chat.Speech, results scores.Lister, profile tutor.Profile) *TopicsScreen {
	var items []components.MenuItem
	for _, e := range cat.Entries() {
		sess := tutor.Session{Grade: e.Grade, Subject: e.Subject, Unit: e.Unit, Topic: e.Topic}
		items = append(items, components.MenuItem{
			Label: e.Title(),
			Hint:  e.Description(),
			Action: func() tea.Cmd {
				return func() tea.Msg {
					return router.PushScreenMsg{Screen: chat.New(t, sess, sp)}
				}
			},
		})
	}
	items = append(items,
		components.MenuItem{Label: "Quiz scores", Disabled: results == nil, Action: func() tea.Cmd {
			return func() tea.Msg {
				return router.PushScreenMsg{Screen: scores.New(results)}
			}
		}},
		components.MenuItem{Label: "Exit", Action: func() tea.Cmd {
			return tea.Quit
		}},
	)
	return &TopicsScreen{menu: components.NewMenu(items), profile: profile}
}

func (s *TopicsScreen) Init() tea.Cmd {
	return nil
}

func (s *TopicsScreen) Title() string {
	return "Choose a topic"
}

func (s *TopicsScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Enter", Description: "Start lesson"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (s *TopicsScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	var cmd tea.Cmd
	s.menu, cmd = s.menu.Update(msg)
	return s, cmd
}

func (s *TopicsScreen) View(width, height int) string {
	var b strings.Builder
	greeting := "What shall we learn today?"
	if s.profile.Name != "" {
		greeting = "Hi " + s.profile.Name + "! " + greeting
	}
	b.WriteString("\n")
	b.WriteString(theme.Title.Width(width).Render(greeting))
	b.WriteString("\n\n")

	list := s.menu.ViewWindow(max(height-5, 1))
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, list))
	return b.String()
}
