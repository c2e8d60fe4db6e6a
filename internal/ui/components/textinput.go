package components

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
)

// QuestionInput is the single-line question box. Up and down walk back
// through questions already asked in this session.
type QuestionInput struct {
	Model   textinput.Model
	history []string
	// cursor indexes history while recalling; len(history) means the
	// draft line.
	cursor int
	draft  string
}

func NewQuestionInput(placeholder string, charLimit int) QuestionInput {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = charLimit
	ti.Focus()
	return QuestionInput{Model: ti}
}

func (q QuestionInput) Init() tea.Cmd {
	return q.Model.Focus()
}

func (q QuestionInput) Update(msg tea.Msg) (QuestionInput, tea.Cmd) {
	if k, ok := msg.(tea.KeyPressMsg); ok {
		switch k.String() {
		case "up":
			q.recall(-1)
			return q, nil
		case "down":
			q.recall(1)
			return q, nil
		}
	}
	var cmd tea.Cmd
	q.Model, cmd = q.Model.Update(msg)
	return q, cmd
}

func (q *QuestionInput) recall(step int) {
	if len(q.history) == 0 {
		return
	}
	if q.cursor == len(q.history) {
		q.draft = q.Model.Value()
	}
	q.cursor = min(max(q.cursor+step, 0), len(q.history))
	if q.cursor == len(q.history) {
		q.Model.SetValue(q.draft)
	} else {
		q.Model.SetValue(q.history[q.cursor])
	}
	q.Model.CursorEnd()
}

func (q QuestionInput) View() string {
	return q.Model.View()
}

func (q QuestionInput) Value() string {
	return strings.TrimSpace(q.Model.Value())
}

// Take returns the trimmed question, records it for recall and clears the
// box. Blank input returns "" and changes nothing.
func (q *QuestionInput) Take() string {
	v := q.Value()
	if v == "" {
		return ""
	}
	if n := len(q.history); n == 0 || q.history[n-1] != v {
		q.history = append(q.history, v)
	}
	q.cursor = len(q.history)
	q.draft = ""
	q.Model.Reset()
	return v
}
