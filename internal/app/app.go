// Package app hosts the Bubble Tea program: the screen router, the frame
// and the bridge that turns tutor and speech callbacks into messages.
package app

import (
	"context"
	"fmt"
	"sync"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/catalog"
	"github.com/vidyadost/vidyadost/internal/logger"
	"github.com/vidyadost/vidyadost/internal/router"
	"github.com/vidyadost/vidyadost/internal/screen"
	"github.com/vidyadost/vidyadost/internal/screens/chat"
	"github.com/vidyadost/vidyadost/internal/screens/scores"
	"github.com/vidyadost/vidyadost/internal/screens/topics"
	"github.com/vidyadost/vidyadost/internal/tutor"
	"github.com/vidyadost/vidyadost/internal/ui/layout"
)

// Options wires the program to the rest of the application.
type Options struct {
	Tutor   chat.Tutor
	Catalog *catalog.Catalog
	Speech  chat.Speech
	// Results may be nil when no result store is configured.
	Results scores.Lister
	Profile tutor.Profile
	// Notifier, when set, is attached to the running program.
	Notifier *Notifier
	Log      *logger.Logger
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	router *router.Router
	tutor  chat.Tutor
	status string
	width  int
	height int
}

// newAppModel creates a new AppModel with the topic picker.
func newAppModel(opts Options) AppModel {
	home := topics.New(opts.Catalog, opts.Tutor, opts.Speech, opts.Results, opts.Profile)
	m := AppModel{
		router: router.New(home),
		tutor:  opts.Tutor,
	}
	m.refreshStatus()
	return m
}

func (m *AppModel) refreshStatus() {
	if m.tutor == nil {
		return
	}
	if r := m.tutor.Snapshot().LastScore; r != nil {
		m.status = layout.ScoreStatus(r.Score, r.Total)
	}
}

func (m AppModel) Init() tea.Cmd {
	return nil
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case screen.TutorChangedMsg:
		m.refreshStatus()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.router.Depth() > 1 {
				return m, func() tea.Msg { return router.PopScreenMsg{} }
			}
			return m, nil
		}
	}

	cmd := m.router.Update(msg)
	return m, cmd
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	title := ""
	if active != nil {
		title = active.Title()
	}

	header := layout.RenderHeader(title, m.status, m.width)

	var footerHints []layout.KeyHint
	if kp, ok := active.(screen.KeyHintProvider); ok {
		footerHints = kp.KeyHints()
	} else if m.router.Depth() > 1 {
		footerHints = []layout.KeyHint{
			{Key: "Esc", Description: "Back"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}

	footer := layout.RenderFooter(footerHints, m.width)

	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := m.height - headerHeight - footerHeight
	if contentHeight < 0 {
		contentHeight = 0
	}

	content := m.router.View(m.width, contentHeight)
	frame := layout.RenderFrame(header, content, footer, m.width, m.height)

	v.SetContent(frame)
	return v
}

// Notifier forwards change callbacks into a running program. Callbacks
// may fire from inside Update, so sends are asynchronous and coalesced
// per kind: the screens re-read state on receipt.
type Notifier struct {
	mu      sync.Mutex
	p       *tea.Program
	pending map[string]bool
}

// NewNotifier returns a Notifier that drops callbacks until attached.
func NewNotifier() *Notifier {
	return &Notifier{pending: make(map[string]bool)}
}

func (n *Notifier) attach(p *tea.Program) {
	n.mu.Lock()
	n.p = p
	n.mu.Unlock()
}

// TutorChanged is a tutor.Controller observer.
func (n *Notifier) TutorChanged(tutor.Event) {
	n.notify("tutor", screen.TutorChangedMsg{})
}

// SpeechChanged is a speech queue change callback.
func (n *Notifier) SpeechChanged() {
	n.notify("speech", screen.SpeechChangedMsg{})
}

func (n *Notifier) notify(kind string, msg tea.Msg) {
	n.mu.Lock()
	p := n.p
	if p == nil || n.pending[kind] {
		n.mu.Unlock()
		return
	}
	n.pending[kind] = true
	n.mu.Unlock()

	go func() {
		n.mu.Lock()
		n.pending[kind] = false
		n.mu.Unlock()
		p.Send(msg)
	}()
}

// Run starts the Bubble Tea program and blocks until it exits or ctx is
// cancelled.
func Run(ctx context.Context, opts Options) error {
	log := logger.OrNop(opts.Log)
	p := tea.NewProgram(newAppModel(opts), tea.WithContext(ctx))
	if opts.Notifier != nil {
		opts.Notifier.attach(p)
		defer opts.Notifier.attach(nil)
	}
	log.Info("tui started")
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run program: %w", err)
	}
	return nil
}
