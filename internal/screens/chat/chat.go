// Package chat is the tutoring conversation screen: streamed answers,
// the now-speaking marker, learning-style switching and the quiz overlay.
package chat

import (
	"context"
	"errors"

	tea "charm.land/bubbletea/v2"

	"github.com/vidyadost/vidyadost/internal/pedagogy"
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/router"
	"github.com/vidyadost/vidyadost/internal/screen"
	"github.com/vidyadost/vidyadost/internal/speech"
	"github.com/vidyadost/vidyadost/internal/tutor"
	"github.com/vidyadost/vidyadost/internal/ui/components"
	"github.com/vidyadost/vidyadost/internal/ui/layout"
)

// Tutor is the part of tutor.Controller the screen drives.
type Tutor interface {
	Snapshot() tutor.Snapshot
	StartSession(ctx context.Context, sess tutor.Session) error
	EndSession()
	ConsumePendingLessonPrompt() string
	Ask(ctx context.Context, question string) (tutor.Message, error)
	StartQuiz(ctx context.Context) error
	AnswerQuiz(choice int) (quiz.Snapshot, error)
	SetLearningStyle(style pedagogy.Style) error
}

// Speech exposes playback state to the screen. Both funcs may be nil.
type Speech struct {
	Status func() speech.Status
	Stop   func()
}

// ChatScreen implements screen.Screen for one tutoring session.
type ChatScreen struct {
	tutor   Tutor
	session tutor.Session
	speech  Speech

	snap     tutor.Snapshot
	speaking speech.Status
	input    components.QuestionInput
	started  bool
	closed   bool
	notice   string

	// mc is the overlay for quiz question mcIndex.
	mc      components.Choice
	mcIndex int
	mcReady bool
}

var _ screen.Screen = (*ChatScreen)(nil)
var _ screen.KeyHintProvider = (*ChatScreen)(nil)
var _ screen.Closer = (*ChatScreen)(nil)

// New creates a ChatScreen that starts sess on Init.
func New(t Tutor, sess tutor.Session, sp Speech) *ChatScreen {
	return &ChatScreen{
		tutor:   t,
		session: sess,
		speech:  sp,
		input:   newInput(),
	}
}

func newInput() components.QuestionInput {
	return components.NewQuestionInput("Ask a question...", 500)
}

func (s *ChatScreen) Init() tea.Cmd {
	return tea.Batch(s.startSession(), s.input.Init())
}

func (s *ChatScreen) Title() string {
	return s.session.Topic
}

func (s *ChatScreen) KeyHints() []layout.KeyHint {
	switch s.snap.Quiz.Status {
	case quiz.StatusInProgress:
		return []layout.KeyHint{
			{Key: "1-4", Description: "Answer"},
			{Key: "↑↓ Enter", Description: "Choose"},
			{Key: "Esc", Description: "End session"},
		}
	case quiz.StatusLoading, quiz.StatusFinished:
		return []layout.KeyHint{
			{Key: "Esc", Description: "End session"},
		}
	}
	return []layout.KeyHint{
		{Key: "Enter", Description: "Ask"},
		{Key: "Tab", Description: "Style"},
		{Key: "Ctrl+Q", Description: "Quiz"},
		{Key: "Ctrl+T", Description: "Mute"},
		{Key: "Esc", Description: "End session"},
	}
}

// Close ends the tutoring session when the screen is popped.
func (s *ChatScreen) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.speech.Stop != nil {
		s.speech.Stop()
	}
	s.tutor.EndSession()
}

func (s *ChatScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionStartedMsg:
		return s.handleStarted(msg)

	case askDoneMsg:
		if msg.Err != nil && !errors.Is(msg.Err, tutor.ErrSuperseded) {
			s.notice = msg.Err.Error()
		}
		return s.refresh()

	case quizStartedMsg:
		if msg.Err != nil && !errors.Is(msg.Err, quiz.ErrQuizActive) {
			s.notice = "Quiz generation failed, showing practice questions."
		}
		return s.refresh()

	case quizAnsweredMsg:
		if msg.Err != nil {
			s.notice = msg.Err.Error()
		}
		return s.refresh()

	case screen.TutorChangedMsg:
		return s.refresh()

	case screen.SpeechChangedMsg:
		if s.speech.Status != nil {
			s.speaking = s.speech.Status()
		}
		return s, nil

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if s.acceptsInput() {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *ChatScreen) startSession() tea.Cmd {
	t, sess := s.tutor, s.session
	return func() tea.Msg {
		return sessionStartedMsg{Err: t.StartSession(context.Background(), sess)}
	}
}

func (s *ChatScreen) handleStarted(msg sessionStartedMsg) (screen.Screen, tea.Cmd) {
	s.started = true
	if msg.Err != nil {
		s.notice = "Could not load earlier conversation: " + msg.Err.Error()
	}
	s.snap = s.tutor.Snapshot()
	if prompt := s.tutor.ConsumePendingLessonPrompt(); prompt != "" {
		return s, s.ask(prompt)
	}
	return s, nil
}

// refresh re-reads the tutor state. A session that ended on its own
// (after a finished quiz) closes the screen.
func (s *ChatScreen) refresh() (screen.Screen, tea.Cmd) {
	s.snap = s.tutor.Snapshot()
	if s.started && !s.closed && s.snap.Session == nil {
		s.closed = true
		return s, func() tea.Msg { return router.PopScreenMsg{} }
	}
	s.syncQuiz()
	return s, nil
}

// syncQuiz builds the overlay for the current quiz question.
func (s *ChatScreen) syncQuiz() {
	q, ok := s.snap.Quiz.CurrentQuestion()
	if !ok {
		s.mcReady = false
		return
	}
	if s.mcReady && s.mcIndex == s.snap.Quiz.Current {
		return
	}
	s.mc = components.NewChoice(q.Question, q.Options)
	s.mcIndex = s.snap.Quiz.Current
	s.mcReady = true
}

func (s *ChatScreen) acceptsInput() bool {
	return s.started && s.snap.Quiz.Status == quiz.StatusIdle
}

func (s *ChatScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()

	if s.mcReady && s.snap.Quiz.Status == quiz.StatusInProgress {
		s.mc, _ = s.mc.Update(msg)
		if choice, ok := s.mc.Chosen(); ok {
			s.mcReady = false
			snap, err := s.tutor.AnswerQuiz(choice)
			return s.Update(quizAnsweredMsg{Snapshot: snap, Err: err})
		}
		return s, nil
	}

	if !s.acceptsInput() {
		return s, nil
	}

	switch key {
	case "enter":
		q := s.input.Take()
		if q == "" {
			return s, nil
		}
		s.notice = ""
		return s, s.ask(q)
	case "tab":
		next := s.snap.Pedagogy.Style + 1
		if !next.Valid() {
			next = pedagogy.StyleNormal
		}
		if err := s.tutor.SetLearningStyle(next); err != nil {
			s.notice = err.Error()
		}
		return s.refresh()
	case "ctrl+q":
		return s, s.startQuiz()
	case "ctrl+t":
		if s.speech.Stop != nil {
			s.speech.Stop()
		}
		return s, nil
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *ChatScreen) ask(q string) tea.Cmd {
	t := s.tutor
	return func() tea.Msg {
		m, err := t.Ask(context.Background(), q)
		return askDoneMsg{Message: m, Err: err}
	}
}

func (s *ChatScreen) startQuiz() tea.Cmd {
	t := s.tutor
	return func() tea.Msg {
		return quizStartedMsg{Err: t.StartQuiz(context.Background())}
	}
}
