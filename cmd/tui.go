package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidyadost/vidyadost/internal/app"
	"github.com/vidyadost/vidyadost/internal/catalog"
	"github.com/vidyadost/vidyadost/internal/screens/chat"
	"github.com/vidyadost/vidyadost/internal/speech"
	"github.com/vidyadost/vidyadost/internal/tutor"
)

// runTUI builds dependencies and launches the terminal front-end.
func runTUI(cmd *cobra.Command) error {
	ctx := cmd.Context()
	notifier := app.NewNotifier()

	d, err := buildDeps(cmd, depsOptions{
		LogFile:  true,
		Speech:   true,
		OnSpeech: func(speech.Status) { notifier.SpeechChanged() },
		Tutor:    true,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	cat := catalog.Default()
	if path, _ := cmd.Flags().GetString("catalog"); path != "" {
		if cat, err = catalog.Load(path); err != nil {
			return err
		}
	}

	d.tutor.SetObserver(notifier.TutorChanged)
	if err := d.tutor.RestoreLastScore(ctx); err != nil {
		d.log.Warn("restore last score failed", "error", err)
	}

	sp := chat.Speech{}
	if d.queue != nil {
		sp.Status = d.queue.Status
		sp.Stop = d.queue.Stop
	}

	p := d.cfg.Profile
	err = app.Run(ctx, app.Options{
		Tutor:    d.tutor,
		Catalog:  cat,
		Speech:   sp,
		Results:  d.store.QuizResultRepo(),
		Profile:  tutor.Profile{Name: p.Name, Age: p.Age, Standard: p.Standard, SecondLanguage: p.SecondLanguage},
		Notifier: notifier,
		Log:      d.log,
	})
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func init() {
	rootCmd.Flags().String("catalog", "", "Path to a topic catalog YAML file (default: built-in catalog)")
}
