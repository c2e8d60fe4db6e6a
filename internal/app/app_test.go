package app

import (
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"

	"github.com/vidyadost/vidyadost/internal/catalog"
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/screen"
	"github.com/vidyadost/vidyadost/internal/screens/chat"
	"github.com/vidyadost/vidyadost/internal/tutor"
	"github.com/vidyadost/vidyadost/internal/ui/layout"
)

type scoreTutor struct {
	chat.Tutor
	last *quiz.Result
}

func (s *scoreTutor) Snapshot() tutor.Snapshot {
	return tutor.Snapshot{LastScore: s.last}
}

func TestAppModel_HeaderShowsLastScore(t *testing.T) {
	tt := &scoreTutor{}
	m := newAppModel(Options{Tutor: tt, Catalog: catalog.Default(), Speech: chat.Speech{}})
	assert.Empty(t, m.status)

	tt.last = &quiz.Result{Score: 3, Total: 4}
	updated, _ := m.Update(screen.TutorChangedMsg{})
	m = updated.(AppModel)
	assert.Equal(t, "★ Last quiz 3/4", m.status)
	assert.Contains(t, layout.RenderHeader("Choose a topic", m.status, 100), "Last quiz 3/4")
}

func TestAppModel_EscAtRootDoesNothing(t *testing.T) {
	m := newAppModel(Options{Tutor: &scoreTutor{}, Catalog: catalog.Default()})
	_, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	assert.Nil(t, cmd)
}

func TestNotifier_DropsUntilAttached(t *testing.T) {
	n := NewNotifier()
	n.TutorChanged(tutor.Event{})
	n.SpeechChanged()
	assert.False(t, n.pending["tutor"])
	assert.False(t, n.pending["speech"])
}
