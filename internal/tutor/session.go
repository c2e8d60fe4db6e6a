package tutor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vidyadost/vidyadost/internal/imagesearch"
	"github.com/vidyadost/vidyadost/internal/pedagogy"
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/transcript"
)

var (
	// ErrEmptyQuestion is returned by Ask for a blank question.
	ErrEmptyQuestion = errors.New("tutor: question is empty")
	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("tutor: no active session")
	// ErrInvalidSession is returned when grade, subject or topic is blank.
	ErrInvalidSession = errors.New("tutor: grade, subject and topic are required")
	// ErrSuperseded is returned by Ask when a newer question or a session
	// change took over before the answer finished.
	ErrSuperseded = errors.New("tutor: answer superseded")
)

// Apology replaces the answer of a failed exchange.
const Apology = "Sorry, I had trouble answering that."

// Profile describes the learner.
type Profile struct {
	Name           string
	Age            int
	Standard       string
	SecondLanguage string
}

// Session is one grade/subject/unit/topic learning context.
type Session struct {
	Grade   string
	Subject string
	Unit    string
	Topic   string
	Key     string
}

// NewSession validates the fields and derives the key.
func NewSession(grade, subject, unit, topic string) (Session, error) {
	s := Session{
		Grade:   strings.TrimSpace(grade),
		Subject: strings.TrimSpace(subject),
		Unit:    strings.TrimSpace(unit),
		Topic:   strings.TrimSpace(topic),
	}
	if s.Grade == "" || s.Subject == "" || s.Topic == "" {
		return Session{}, ErrInvalidSession
	}
	s.Key = transcript.SessionKey(s.Grade, s.Subject, s.Unit, s.Topic)
	return s, nil
}

// LessonPrompt is the question asked automatically when a session starts.
func (s Session) LessonPrompt() string {
	return fmt.Sprintf("Explain %s for %s %s in simple steps.", s.Topic, s.Grade, s.Subject)
}

// Message is one question and its answer.
type Message struct {
	ID       string
	Question string
	// Answer is the live text while streaming and the cleaned final text
	// once DisplayReady is set.
	Answer       string
	DisplayReady bool
	// Failed marks an exchange that did not complete: it ended in the
	// apology text or was superseded. Failed messages are never persisted
	// or sent as context.
	Failed       bool
	ImageKeyword string
	CreatedAt    time.Time
}

func (m Message) isTurn() bool {
	return m.DisplayReady && !m.Failed && m.Question != "" && m.Answer != ""
}

// Snapshot is a copy of the controller state for rendering.
type Snapshot struct {
	Session   *Session
	Messages  []Message
	CurrentID string
	Loading   bool
	Pedagogy  pedagogy.State
	// PendingPrompt is the lesson prompt not yet consumed.
	PendingPrompt string
	Image         *imagesearch.Image
	ImageError    string
	Quiz          quiz.Snapshot
	LastScore     *quiz.Result
}

// EventType says which part of the state changed.
type EventType int

const (
	EventSession EventType = iota
	EventHistory
	EventMessage
	EventImage
	EventQuiz
	EventScore
)

// Event is published after every state change. Observers read the new
// state through Controller.Snapshot.
type Event struct {
	Type      EventType
	MessageID string
}
