package chat

import (
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/tutor"
)

// sessionStartedMsg is sent when the session is active and its history
// restore has finished.
type sessionStartedMsg struct {
	Err error
}

// askDoneMsg is sent when an answer is final.
type askDoneMsg struct {
	Message tutor.Message
	Err     error
}

// quizStartedMsg is sent when a manually requested quiz is ready.
type quizStartedMsg struct {
	Err error
}

// quizAnsweredMsg carries the flow state after a choice.
type quizAnsweredMsg struct {
	Snapshot quiz.Snapshot
	Err      error
}
