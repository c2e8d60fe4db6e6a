package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidyadost/vidyadost/internal/catalog"
	"github.com/vidyadost/vidyadost/internal/speech"
	"github.com/vidyadost/vidyadost/internal/tutor"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question about a topic and print the streamed answer",
	Example: `  vidyadost ask --topic science-6/biology/photosynthesis "Why are leaves green?"
  vidyadost ask --grade 6th --subject Math --topic-name Fractions "What is a half?"
  vidyadost ask --topic math-6/algebra/fractions --audio question.wav --speak`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	speak, _ := cmd.Flags().GetBool("speak")

	d, err := buildDeps(cmd, depsOptions{Speech: speak, Tutor: true})
	if err != nil {
		return err
	}
	defer d.Close()
	if speak && d.queue == nil {
		return errors.New("--speak needs speech.enabled in the config")
	}

	sess, err := sessionFromFlags(cmd)
	if err != nil {
		return err
	}

	question := ""
	if len(args) == 1 {
		question = args[0]
	}
	if audio, _ := cmd.Flags().GetString("audio"); audio != "" {
		if question, err = transcribe(ctx, d.cfg.STT.Region, d.cfg.STT.Key, d.cfg.STT.Language, d.cfg.STT.Timeout, audio); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "You said: %s\n\n", question)
	}
	if strings.TrimSpace(question) == "" {
		return errors.New("a question or --audio file is required")
	}

	if err := d.tutor.StartSession(ctx, sess); err != nil {
		d.log.Warn("history restore failed", "error", err)
	}

	out := &answerPrinter{w: cmd.OutOrStdout(), tutor: d.tutor}
	d.tutor.SetObserver(out.observe)
	msg, askErr := d.tutor.Ask(ctx, question)
	out.finish(msg)

	if d.queue != nil && askErr == nil {
		waitForSpeech(ctx, d.queue)
	}
	return askErr
}

// sessionFromFlags resolves --topic against the catalog, or builds a
// session from the explicit grade/subject/unit/topic-name flags.
func sessionFromFlags(cmd *cobra.Command) (tutor.Session, error) {
	if id, _ := cmd.Flags().GetString("topic"); id != "" {
		e, err := catalog.Default().Find(id)
		if err != nil {
			return tutor.Session{}, err
		}
		return tutor.NewSession(e.Grade, e.Subject, e.Unit, e.Topic)
	}
	grade, _ := cmd.Flags().GetString("grade")
	subject, _ := cmd.Flags().GetString("subject")
	unit, _ := cmd.Flags().GetString("unit")
	topic, _ := cmd.Flags().GetString("topic-name")
	return tutor.NewSession(grade, subject, unit, topic)
}

func transcribe(ctx context.Context, region, key, language string, timeout time.Duration, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	rec := speech.NewRecognizer(region, key, timeout)
	t, err := rec.Recognize(ctx, audio, mime.TypeByExtension(filepath.Ext(path)), language)
	if err != nil {
		return "", fmt.Errorf("recognize speech: %w", err)
	}
	if strings.TrimSpace(t.Text) == "" {
		return "", fmt.Errorf("no speech recognized (status %q)", t.Status)
	}
	return t.Text, nil
}

// answerPrinter writes the newest answer text as it streams.
type answerPrinter struct {
	w     io.Writer
	tutor *tutor.Controller

	mu      sync.Mutex
	id      string
	printed string
}

func (p *answerPrinter) observe(ev tutor.Event) {
	if ev.Type != tutor.EventMessage {
		return
	}
	snap := p.tutor.Snapshot()
	for _, m := range snap.Messages {
		if m.ID == ev.MessageID {
			p.write(m.ID, m.Answer)
		}
	}
}

func (p *answerPrinter) write(id, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		p.id = id
	}
	if id != p.id || !strings.HasPrefix(text, p.printed) {
		return
	}
	fmt.Fprint(p.w, text[len(p.printed):])
	p.printed = text
}

// finish prints whatever the stream did not, then a newline. A final
// text that diverged from the streamed prefix is printed again in full.
func (p *answerPrinter) finish(m tutor.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.HasPrefix(m.Answer, p.printed):
		fmt.Fprint(p.w, m.Answer[len(p.printed):])
	default:
		fmt.Fprint(p.w, "\n\n"+m.Answer)
	}
	fmt.Fprintln(p.w)
	p.printed = m.Answer
}

// waitForSpeech blocks until the queue has played everything.
func waitForSpeech(ctx context.Context, q *speech.Queue) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		st := q.Status()
		if !st.Speaking && st.Pending == 0 {
			return
		}
		select {
		case <-ctx.Done():
			q.Stop()
			return
		case <-t.C:
		}
	}
}

func init() {
	askCmd.Flags().String("topic", "", "Catalog topic ID, e.g. science-6/biology/photosynthesis")
	askCmd.Flags().String("grade", "", "Grade, e.g. 6th")
	askCmd.Flags().String("subject", "", "Subject, e.g. Science")
	askCmd.Flags().String("unit", "", "Unit, e.g. Biology")
	askCmd.Flags().String("topic-name", "", "Topic name, e.g. Photosynthesis")
	askCmd.Flags().String("audio", "", "Audio file to transcribe and ask instead of a typed question")
	askCmd.Flags().Bool("speak", false, "Speak the answer through the configured player")
}
