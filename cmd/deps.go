package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vidyadost/vidyadost/internal/config"
	"github.com/vidyadost/vidyadost/internal/imagesearch"
	"github.com/vidyadost/vidyadost/internal/llm"
	"github.com/vidyadost/vidyadost/internal/logger"
	"github.com/vidyadost/vidyadost/internal/quiz"
	"github.com/vidyadost/vidyadost/internal/signals"
	"github.com/vidyadost/vidyadost/internal/speech"
	"github.com/vidyadost/vidyadost/internal/store"
	"github.com/vidyadost/vidyadost/internal/transcript"
	"github.com/vidyadost/vidyadost/internal/tutor"
)

// depsOptions selects the optional parts of the dependency graph.
type depsOptions struct {
	// LogFile sends logs to a file when the config names none. The TUI
	// needs this so log lines do not tear the frame.
	LogFile bool
	// Speech builds the playback queue when speech is enabled in config.
	Speech bool
	// OnSpeech is called on every playback status change.
	OnSpeech func(speech.Status)
	// Tutor builds the controller and its collaborators.
	Tutor bool
}

// deps is the wired application.
type deps struct {
	cfg         *config.Config
	log         *logger.Logger
	store       *store.Store
	transcripts transcript.Store
	queue       *speech.Queue
	tutor       *tutor.Controller

	closers []func()
}

// loadConfig reads the file named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildDeps builds config, logger, store, LLM provider, transcript
// backend, speech queue, image search and the tutor controller, in that
// order.
func buildDeps(cmd *cobra.Command, opts depsOptions) (d *deps, err error) {
	ctx := cmd.Context()
	d = &deps{}
	defer func() {
		if err != nil {
			d.Close()
			d = nil
		}
	}()

	if d.cfg, err = loadConfig(cmd); err != nil {
		return d, err
	}

	logOpts := logger.Options{
		Mode:   d.cfg.Log.Mode,
		Level:  d.cfg.Log.Level,
		File:   d.cfg.Log.File,
		Redact: d.cfg.Log.Redact,
	}
	if opts.LogFile && logOpts.File == "" {
		if logOpts.File, err = defaultLogFile(); err != nil {
			return d, err
		}
	}
	if d.log, err = logger.New(logOpts); err != nil {
		return d, err
	}
	d.closers = append(d.closers, d.log.Sync)

	if d.store, err = openStore(cmd); err != nil {
		return d, fmt.Errorf("open store: %w", err)
	}
	d.closers = append(d.closers, func() { _ = d.store.Close() })

	if !opts.Tutor {
		return d, nil
	}

	if d.transcripts, err = d.openTranscripts(ctx); err != nil {
		return d, err
	}

	provider := d.provider(ctx)

	detector, err := d.detector()
	if err != nil {
		return d, err
	}

	tdeps := tutor.Deps{
		Provider:      provider,
		Detector:      detector,
		Transcripts:   d.transcripts,
		Images:        imagesearch.NewClient(d.cfg.Images.SerpAPIKey, d.cfg.Images.BaseURL, d.cfg.Images.Timeout, d.log),
		QuizGenerator: quiz.NewLLMGenerator(provider, d.log),
		Results:       d.store.QuizResultRepo(),
		Log:           d.log,
	}

	if opts.Speech && d.cfg.Speech.Enabled {
		player, err := speech.NewExecPlayer(d.cfg.Speech.Player)
		if err != nil {
			return d, err
		}
		synth := speech.NewHTTPSynthesizer(d.cfg.Speech.TTSURL, d.cfg.Speech.Voice, d.cfg.Speech.Timeout, d.log)
		d.queue = speech.NewQueue(synth, player, d.log, speech.QueueOptions{
			SynthesisTimeout: d.cfg.Speech.Timeout,
			OnChange:         opts.OnSpeech,
		})
		d.closers = append(d.closers, d.queue.Stop)
		tdeps.Speaker = d.queue
	}

	p := d.cfg.Profile
	d.tutor = tutor.New(tdeps, tutor.Options{
		Profile:            tutor.Profile{Name: p.Name, Age: p.Age, Standard: p.Standard, SecondLanguage: p.SecondLanguage},
		AltLanguageDefault: d.cfg.Pedagogy.AltLanguageDefault,
		HistoryTurns:       d.cfg.Pedagogy.HistoryTurns,
		FinishDelay:        d.cfg.Quiz.FinishDelay,
		HistoryTimeout:     d.cfg.History.Timeout,
		ImageTimeout:       d.cfg.Images.Timeout,
		QuizTimeout:        d.cfg.Quiz.Timeout,
	})
	d.closers = append(d.closers, d.tutor.Close)
	return d, nil
}

// provider returns the configured LLM provider, or one that reports the
// configuration problem on every request.
func (d *deps) provider(ctx context.Context) llm.Provider {
	pcfg, ok := d.cfg.LLMProviderConfig()
	if !ok {
		d.log.Warn("no LLM provider configured; answers will fail until an API key is set")
		return llm.Unavailable(errors.New("set llm.provider or one of GROQ_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY"))
	}
	p, err := llm.NewProvider(ctx, pcfg, d.store.EventRepo(), d.log)
	if err != nil {
		d.log.Warn("LLM provider unavailable", "provider", pcfg.Provider, "error", err)
		return llm.Unavailable(err)
	}
	d.log.Info("LLM provider ready", "provider", pcfg.Provider, "model", p.ModelID())
	return p
}

// openTranscripts builds the configured history backend.
func (d *deps) openTranscripts(ctx context.Context) (transcript.Store, error) {
	h := d.cfg.History
	switch h.Backend {
	case config.BackendFile:
		s, err := transcript.NewFileStore(h.Dir, d.log)
		if err != nil {
			return nil, fmt.Errorf("open file history: %w", err)
		}
		return s, nil
	case config.BackendHTTP:
		return transcript.NewHTTPStore(h.URL, h.Timeout), nil
	case config.BackendRedis:
		s, err := transcript.NewRedisStore(ctx, h.RedisAddr, d.log)
		if err != nil {
			return nil, fmt.Errorf("open redis history: %w", err)
		}
		d.closers = append(d.closers, func() { _ = s.Close() })
		return s, nil
	default:
		return transcript.NewSQLStore(d.store.TranscriptRepo()), nil
	}
}

func (d *deps) detector() (*signals.Detector, error) {
	path := d.cfg.Pedagogy.VocabularyFile
	if path == "" {
		return signals.NewDefaultDetector(), nil
	}
	v, err := signals.LoadVocabulary(path)
	if err != nil {
		return nil, err
	}
	return signals.NewDetector(v)
}

// Close releases everything in reverse construction order.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func defaultLogFile() (string, error) {
	dbPath, err := store.DefaultDBPath()
	if err != nil {
		return "", err
	}
	path := filepath.Join(filepath.Dir(dbPath), "vidyadost.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	return path, f.Close()
}
