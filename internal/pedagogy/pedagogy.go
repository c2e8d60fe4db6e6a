// Package pedagogy tracks how a session is being taught: the learning
// style, the miss and comprehension counters, and whether explanations
// switch to the learner's second language.
package pedagogy

import (
	"fmt"
	"strings"

	"github.com/vidyadost/vidyadost/internal/signals"
)

// Style is the tutoring mode requested from the model.
type Style int

const (
	StyleNormal     Style = 1
	StyleRealWorld  Style = 2
	StyleImage      Style = 3
	StyleStepByStep Style = 4
)

// Thresholds for the automatic transitions.
const (
	MissThreshold   = 2
	StreakThreshold = 2
)

// Valid reports whether s is one of the four defined styles.
func (s Style) Valid() bool {
	return s >= StyleNormal && s <= StyleStepByStep
}

func (s Style) String() string {
	switch s {
	case StyleNormal:
		return "normal"
	case StyleRealWorld:
		return "real-world examples"
	case StyleImage:
		return "image-assisted"
	case StyleStepByStep:
		return "step-by-step"
	}
	return fmt.Sprintf("style(%d)", int(s))
}

// State is the per-session pedagogy state. The zero value is not ready;
// use NewState.
type State struct {
	Style             Style
	ConsecutiveMisses int
	CorrectStreak     int
	UseAltLanguage    bool
	// ImageShownOnce latches after the first image of the session.
	ImageShownOnce bool
}

// Transition reports what Apply changed that callers must act on.
type Transition struct {
	// ForcedImageMode is set when the miss rule switched to image mode.
	ForcedImageMode bool
	// LanguageSwitched is set when UseAltLanguage turned on in this step.
	LanguageSwitched bool
	// TriggerQuiz asks the caller to start the quiz sub-flow.
	TriggerQuiz bool
}

// NewState returns the state a fresh session starts with.
func NewState() State {
	return State{Style: StyleNormal}
}

// Reset returns the state to its session-start value.
func (s *State) Reset() {
	*s = NewState()
}

// Apply advances the state for one new question. Rules run in order:
// miss counting, streak counting, the image-mode threshold, explicit
// language switch, then the quiz trigger.
func (s *State) Apply(sig signals.Signals, quizActive bool) Transition {
	var t Transition
	wasAlt := s.UseAltLanguage

	if sig.Miss {
		s.ConsecutiveMisses++
	} else {
		s.ConsecutiveMisses = 0
	}

	switch {
	case sig.Miss:
		s.CorrectStreak = 0
	case sig.Comprehension:
		s.CorrectStreak++
	}

	if s.ConsecutiveMisses >= MissThreshold || (s.ImageShownOnce && sig.Miss) {
		s.Style = StyleImage
		s.ConsecutiveMisses = 0
		s.UseAltLanguage = true
		t.ForcedImageMode = true
	}

	if sig.LanguageSwitch && !s.UseAltLanguage {
		s.UseAltLanguage = true
	}

	if (s.CorrectStreak >= StreakThreshold || sig.StartQuiz) && !quizActive {
		s.CorrectStreak = 0
		t.TriggerQuiz = true
	}

	t.LanguageSwitched = s.UseAltLanguage && !wasAlt
	return t
}

// ForceStyle sets the style from an external switch. Invalid styles are
// rejected.
func (s *State) ForceStyle(style Style) error {
	if !style.Valid() {
		return fmt.Errorf("invalid learning style %d", int(style))
	}
	s.Style = style
	return nil
}

// MarkImageShown latches ImageShownOnce.
func (s *State) MarkImageShown() {
	s.ImageShownOnce = true
}

// WantsImage reports whether the image step should run for this answer.
func (s State) WantsImage() bool {
	return s.Style == StyleImage && !s.ImageShownOnce
}

// AltLanguage returns the language to explain in, or "" when the
// alternate language is not active. The learner's configured second
// language wins; fallback is used when none is configured.
func AltLanguage(useAlt bool, profileLanguage, fallback string) string {
	if !useAlt {
		return ""
	}
	if lang := strings.TrimSpace(profileLanguage); lang != "" {
		return lang
	}
	return strings.TrimSpace(fallback)
}
