package chat

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/tutor"
	"github.com/vidyadost/vidyadost/internal/ui/components"
	"github.com/vidyadost/vidyadost/internal/ui/layout"
	"github.com/vidyadost/vidyadost/internal/ui/theme"
)

const speakingMark = "🔊"

func (s *ChatScreen) View(width, height int) string {
	if !s.started {
		return lipgloss.NewStyle().
			Width(width).
			Align(lipgloss.Center).
			Foreground(theme.TextDim).
			Render("\n\n\n  Opening your lesson...")
	}

	top := s.renderInfo(width)
	var bottom string
	var body string
	switch s.snap.Quiz.Status {
	case quiz.StatusIdle:
		bottom = s.renderInput(width)
		body = s.renderTranscript(width)
	default:
		body = s.renderQuiz(width)
	}

	used := lipgloss.Height(top)
	if bottom != "" {
		used += lipgloss.Height(bottom)
	}
	body = layout.TailLines(body, height-used)

	parts := []string{top, body}
	if bottom != "" {
		parts = append(parts, bottom)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderInfo is the session line plus the teaching state.
func (s *ChatScreen) renderInfo(width int) string {
	sess := s.session
	if s.snap.Session != nil {
		sess = *s.snap.Session
	}
	path := sess.Subject
	if sess.Unit != "" {
		path += " › " + sess.Unit
	}
	path += " › " + sess.Topic
	left := theme.Topic.Render(fmt.Sprintf("  %s  (%s)", path, sess.Grade))

	state := "Style: " + s.snap.Pedagogy.Style.String()
	if s.snap.Pedagogy.UseAltLanguage {
		state += " · second language"
	}
	if s.speaking.Speaking {
		state += " · " + speakingMark + " speaking"
	}
	right := lipgloss.NewStyle().Foreground(theme.TextDim).Render(state)

	line := left
	if pad := width - lipgloss.Width(left) - lipgloss.Width(right) - 2; pad > 0 {
		line += strings.Repeat(" ", pad) + right
	} else {
		line += "\n  " + right
	}

	return line + "\n" + theme.Rule(width-4)
}

func (s *ChatScreen) renderTranscript(width int) string {
	textWidth := max(width-8, 20)
	body := lipgloss.NewStyle().Foreground(theme.Text).Width(textWidth)
	dim := theme.Muted

	var b strings.Builder
	if len(s.snap.Messages) == 0 {
		b.WriteString(dim.Render("  Ask anything about this topic."))
		b.WriteString("\n")
	}
	for _, m := range s.snap.Messages {
		b.WriteString("\n  " + theme.Learner.Render("You") + "\n")
		b.WriteString(indent(body.Render(m.Question)))
		b.WriteString("\n\n  " + theme.TutorName.Render("Tutor"))
		if s.speaking.Speaking && s.speaking.MessageID == m.ID {
			b.WriteString(" " + speakingMark)
		}
		b.WriteString("\n")
		b.WriteString(indent(s.renderAnswer(m, body, dim)))
		b.WriteString("\n")
	}

	if img := s.snap.Image; img != nil {
		card := theme.Card.Width(textWidth).Render(
			theme.Topic.Render("🖼  "+img.Title) +
				"\n" + dim.Render(img.URL))
		b.WriteString("\n" + indent(card) + "\n")
	} else if s.snap.ImageError != "" {
		b.WriteString("\n" + indent(dim.Render(s.snap.ImageError)) + "\n")
	}

	if s.notice != "" {
		b.WriteString("\n" + indent(theme.Notice.Render(s.notice)) + "\n")
	}
	return b.String()
}

func (s *ChatScreen) renderAnswer(m tutor.Message, body, dim lipgloss.Style) string {
	switch {
	case m.Answer == "" && !m.DisplayReady:
		return dim.Render("thinking...")
	case m.Failed:
		return theme.Notice.Render(body.Render(m.Answer))
	case !m.DisplayReady:
		return body.Render(m.Answer + "▍")
	}
	return body.Render(m.Answer)
}

func (s *ChatScreen) renderInput(width int) string {
	prefix := "  › "
	if s.snap.Loading {
		prefix = "  … "
	}
	return theme.Rule(width-4) + "\n" + prefix + s.input.View()
}

func (s *ChatScreen) renderQuiz(width int) string {
	qs := s.snap.Quiz
	center := lipgloss.NewStyle().Width(width).Align(lipgloss.Center)

	var b strings.Builder
	b.WriteString("\n")
	switch qs.Status {
	case quiz.StatusLoading:
		b.WriteString(center.Foreground(theme.TextDim).Render("Preparing your quiz..."))
		return b.String()

	case quiz.StatusFinished:
		r := qs.Result
		if r == nil {
			r = &quiz.Result{Score: qs.Score, Total: len(qs.Questions)}
		}
		b.WriteString(center.Foreground(theme.Accent).Bold(true).Render("Quiz complete!"))
		b.WriteString("\n\n")
		b.WriteString(center.Foreground(theme.Text).Render(fmt.Sprintf("You scored %d out of %d.", r.Score, r.Total)))
		b.WriteString("\n\n")
		b.WriteString(center.Foreground(theme.TextDim).Render("Closing this lesson..."))
		return b.String()
	}

	total := len(qs.Questions)
	b.WriteString(center.Foreground(theme.Secondary).Bold(true).
		Render(fmt.Sprintf("Quiz · Question %d of %d · Score %d", qs.Current+1, total, qs.Score)))
	b.WriteString("\n")
	bar := components.NewProgressBar(qs.Current, total, true, min(width-8, 50))
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, bar.View()))
	b.WriteString("\n\n")

	if qs.Error != "" {
		b.WriteString(center.Foreground(theme.Error).Render("Could not build a quiz from this lesson, here are practice questions instead."))
		b.WriteString("\n\n")
	}
	if s.mcReady {
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, s.mc.View()))
	}
	if s.notice != "" {
		b.WriteString("\n" + center.Foreground(theme.Error).Render(s.notice))
	}
	return b.String()
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
