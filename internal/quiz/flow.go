// Package quiz runs the four-question comprehension check: generation,
// repair of the generated questions, answering and scoring.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vidyadost/vidyadost/internal/logger"
)

var (
	// ErrQuizActive is returned by Start while a quiz is already showing.
	ErrQuizActive = errors.New("quiz: a quiz is already in progress")
	// ErrNotInProgress is returned by Answer when no question is open.
	ErrNotInProgress = errors.New("quiz: no question is awaiting an answer")
	// ErrInvalidChoice is returned for a choice outside 0..Size-1.
	ErrInvalidChoice = errors.New("quiz: choice out of range")
	// ErrNotWanted is returned by StartIf when its condition fails.
	ErrNotWanted = errors.New("quiz: start no longer wanted")
)

// Status is the quiz lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusInProgress
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusInProgress:
		return "in-progress"
	case StatusFinished:
		return "finished"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the immutable outcome of a finished quiz.
type Result struct {
	Score     int
	Total     int
	Timestamp time.Time
}

// Turn is one prior exchange the quiz is generated from.
type Turn struct {
	User      string
	Assistant string
}

// Request carries everything a Generator needs.
type Request struct {
	Turns   []Turn
	Age     int
	Grade   string
	Subject string
	Topic   string
}

// Generator produces raw questions for a session.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]RawQuestion, error)
}

// Snapshot is a copy of the flow state for rendering.
type Snapshot struct {
	Status    Status
	Questions []Question
	Current   int
	Score     int
	Choices   []int
	// Error is the generation failure shown next to placeholder questions.
	Error  string
	Result *Result
}

// CurrentQuestion returns the question awaiting an answer.
func (s Snapshot) CurrentQuestion() (Question, bool) {
	if s.Status != StatusInProgress || s.Current >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.Current], true
}

// Hooks are invoked outside the flow's lock.
type Hooks struct {
	// OnChange fires after every state change.
	OnChange func(Snapshot)
	// OnFinish fires once when the last question is answered.
	OnFinish func(Result)
}

// Flow is the quiz state machine:
// Idle → Loading → InProgress → Finished → Idle (via Reset).
type Flow struct {
	gen   Generator
	log   *logger.Logger
	hooks Hooks
	now   func() time.Time

	mu        sync.Mutex
	epoch     uint64
	status    Status
	questions []Question
	current   int
	score     int
	choices   []int
	errMsg    string
	result    *Result
}

// NewFlow creates an idle flow.
func NewFlow(gen Generator, log *logger.Logger, hooks Hooks) *Flow {
	return &Flow{gen: gen, log: logger.OrNop(log), hooks: hooks, now: time.Now}
}

// Active reports whether a quiz is showing (loading, open or scored).
func (f *Flow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status != StatusIdle
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Start generates a quiz and blocks until questions are available. When
// generation fails or yields nothing usable, placeholder questions about
// req.Topic are used and the failure is both recorded in the snapshot and
// returned; the quiz is still playable.
func (f *Flow) Start(ctx context.Context, req Request) error {
	return f.StartIf(ctx, req, nil)
}

// StartIf behaves like Start but first asks wanted, under the flow's
// lock, and returns ErrNotWanted while staying Idle when it reports
// false.
func (f *Flow) StartIf(ctx context.Context, req Request, wanted func() bool) error {
	f.mu.Lock()
	if f.status != StatusIdle {
		f.mu.Unlock()
		return ErrQuizActive
	}
	if wanted != nil && !wanted() {
		f.mu.Unlock()
		return ErrNotWanted
	}
	f.epoch++
	epoch := f.epoch
	f.status = StatusLoading
	f.questions, f.choices, f.result = nil, nil, nil
	f.current, f.score, f.errMsg = 0, 0, ""
	snap := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)

	questions, genErr := f.generate(ctx, req)

	f.mu.Lock()
	if f.epoch != epoch {
		f.mu.Unlock()
		f.log.Debug("discarding quiz for a reset flow")
		return nil
	}
	if genErr != nil {
		f.log.Warn("quiz generation failed, using placeholders", "topic", req.Topic, "error", genErr)
		questions = Placeholders(req.Topic)
		f.errMsg = genErr.Error()
	}
	f.questions = questions
	f.status = StatusInProgress
	snap = f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)

	return genErr
}

func (f *Flow) generate(ctx context.Context, req Request) ([]Question, error) {
	if f.gen == nil {
		return nil, errors.New("quiz: no generator configured")
	}
	raw, err := f.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return Clean(raw, req.Topic)
}

// Answer records choice for the current question and advances. After
// the last question the quiz finishes and OnFinish receives the result.
func (f *Flow) Answer(choice int) (Snapshot, error) {
	f.mu.Lock()
	if f.status != StatusInProgress {
		f.mu.Unlock()
		return Snapshot{}, ErrNotInProgress
	}
	if choice < 0 || choice >= Size {
		f.mu.Unlock()
		return Snapshot{}, ErrInvalidChoice
	}

	if f.questions[f.current].AnswerIndex == choice {
		f.score++
	}
	f.choices = append(f.choices, choice)
	f.current++

	var finished *Result
	if f.current == len(f.questions) {
		f.status = StatusFinished
		f.result = &Result{Score: f.score, Total: len(f.questions), Timestamp: f.now()}
		r := *f.result
		finished = &r
	}
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(snap)
	if finished != nil && f.hooks.OnFinish != nil {
		f.hooks.OnFinish(*finished)
	}
	return snap, nil
}

// Reset returns the flow to Idle and discards any in-flight generation.
func (f *Flow) Reset() {
	f.mu.Lock()
	if f.status == StatusIdle && f.questions == nil {
		f.mu.Unlock()
		return
	}
	f.epoch++
	f.status = StatusIdle
	f.questions, f.choices, f.result = nil, nil, nil
	f.current, f.score, f.errMsg = 0, 0, ""
	snap := f.snapshotLocked()
	f.mu.Unlock()
	f.notify(snap)
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		Status:  f.status,
		Current: f.current,
		Score:   f.score,
		Error:   f.errMsg,
	}
	if f.questions != nil {
		s.Questions = make([]Question, len(f.questions))
		for i, q := range f.questions {
			q.Options = append([]string(nil), q.Options...)
			s.Questions[i] = q
		}
	}
	s.Choices = append([]int(nil), f.choices...)
	if f.result != nil {
		r := *f.result
		s.Result = &r
	}
	return s
}

func (f *Flow) notify(s Snapshot) {
	if f.hooks.OnChange != nil {
		f.hooks.OnChange(s)
	}
}
