package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/vidyadost/vidyadost/internal/ui/layout"
)

// Screen defines the interface for all application screens.
type Screen interface {
	// Init returns an initial command when the screen is first created.
	Init() tea.Cmd

	// Update handles messages and returns updated screen + command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content (excluding header/footer).
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is an optional interface that screens can implement
// to provide custom footer key hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// Closer is an optional interface for screens that hold resources; the
// router calls Close when the screen is popped.
type Closer interface {
	Close()
}

// TutorChangedMsg tells screens the tutor state changed. Screens re-read
// it through a snapshot.
type TutorChangedMsg struct{}

// SpeechChangedMsg tells screens the speech queue status changed.
type SpeechChangedMsg struct{}
