package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vidyadost/vidyadost/internal/llm"
)

// Config holds the complete application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Profile  ProfileConfig  `mapstructure:"profile"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	STT      STTConfig      `mapstructure:"stt"`
	Images   ImagesConfig   `mapstructure:"images"`
	History  HistoryConfig  `mapstructure:"history"`
	Pedagogy PedagogyConfig `mapstructure:"pedagogy"`
	Quiz     QuizConfig     `mapstructure:"quiz"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LogConfig selects the log encoder and destination.
type LogConfig struct {
	Mode   string `mapstructure:"mode"`
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Redact bool   `mapstructure:"redact"`
}

// ProfileConfig describes the learner.
type ProfileConfig struct {
	Name           string `mapstructure:"name"`
	Age            int    `mapstructure:"age"`
	Standard       string `mapstructure:"standard"`
	SecondLanguage string `mapstructure:"second_language"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`

	GroqAPIKey       string `mapstructure:"groq_api_key"`
	GroqBaseURL      string `mapstructure:"groq_base_url"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key"`
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`

	RetryAttempts int `mapstructure:"retry_attempts"`
}

// SpeechConfig configures text-to-speech and playback.
type SpeechConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTSURL  string        `mapstructure:"tts_url"`
	Voice   string        `mapstructure:"voice"`
	Player  string        `mapstructure:"player"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// STTConfig configures the Azure speech recognition collaborator.
type STTConfig struct {
	Region   string        `mapstructure:"region"`
	Key      string        `mapstructure:"key"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ImagesConfig configures image search.
type ImagesConfig struct {
	SerpAPIKey string        `mapstructure:"serpapi_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// HistoryConfig selects the transcript backend.
type HistoryConfig struct {
	Backend   string        `mapstructure:"backend"`
	Dir       string        `mapstructure:"dir"`
	URL       string        `mapstructure:"url"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PedagogyConfig tunes the teaching behavior.
type PedagogyConfig struct {
	AltLanguageDefault string `mapstructure:"alt_language_default"`
	VocabularyFile     string `mapstructure:"vocabulary_file"`
	HistoryTurns       int    `mapstructure:"history_turns"`
}

// QuizConfig tunes the quiz flow.
type QuizConfig struct {
	FinishDelay time.Duration `mapstructure:"finish_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServerConfig configures the transcript HTTP service.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// History backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendHTTP   = "http"
	BackendRedis  = "redis"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Mode: "dev", Redact: true},
		Profile: ProfileConfig{
			Name:     "Student",
			Age:      11,
			Standard: "6th",
		},
		LLM: LLMConfig{
			Timeout:       60 * time.Second,
			RetryAttempts: 3,
		},
		Speech: SpeechConfig{
			Enabled: false,
			TTSURL:  "http://localhost:5002/api/tts",
			Voice:   "en_US-lessac-medium",
			Player:  "ffplay -nodisp -autoexit -loglevel quiet {file}",
			Timeout: 20 * time.Second,
		},
		STT: STTConfig{
			Language: "en-US",
			Timeout:  20 * time.Second,
		},
		Images: ImagesConfig{
			BaseURL: "https://serpapi.com/search.json",
			Timeout: 10 * time.Second,
		},
		History: HistoryConfig{
			Backend:   BackendSQLite,
			Dir:       defaultHistoryDir(),
			RedisAddr: "localhost:6379",
			Timeout:   5 * time.Second,
		},
		Pedagogy: PedagogyConfig{
			AltLanguageDefault: "Hindi",
			HistoryTurns:       8,
		},
		Quiz: QuizConfig{
			FinishDelay: 2 * time.Second,
			Timeout:     30 * time.Second,
		},
		Server: ServerConfig{Addr: ":8088"},
	}
}

// Load reads configuration from path (when non-empty) or from vidyadost.yaml
// in the working directory or the user config directory, then applies
// VIDYADOST_* environment overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vidyadost")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("VIDYADOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override values that
// are absent from the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.mode", cfg.Log.Mode)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.redact", cfg.Log.Redact)

	v.SetDefault("profile.name", cfg.Profile.Name)
	v.SetDefault("profile.age", cfg.Profile.Age)
	v.SetDefault("profile.standard", cfg.Profile.Standard)
	v.SetDefault("profile.second_language", cfg.Profile.SecondLanguage)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.groq_api_key", "")
	v.SetDefault("llm.groq_base_url", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openrouter_api_key", "")
	v.SetDefault("llm.retry_attempts", cfg.LLM.RetryAttempts)

	v.SetDefault("speech.enabled", cfg.Speech.Enabled)
	v.SetDefault("speech.tts_url", cfg.Speech.TTSURL)
	v.SetDefault("speech.voice", cfg.Speech.Voice)
	v.SetDefault("speech.player", cfg.Speech.Player)
	v.SetDefault("speech.timeout", cfg.Speech.Timeout)

	v.SetDefault("stt.region", cfg.STT.Region)
	v.SetDefault("stt.key", cfg.STT.Key)
	v.SetDefault("stt.language", cfg.STT.Language)
	v.SetDefault("stt.timeout", cfg.STT.Timeout)

	v.SetDefault("images.serpapi_key", cfg.Images.SerpAPIKey)
	v.SetDefault("images.base_url", cfg.Images.BaseURL)
	v.SetDefault("images.timeout", cfg.Images.Timeout)

	v.SetDefault("history.backend", cfg.History.Backend)
	v.SetDefault("history.dir", cfg.History.Dir)
	v.SetDefault("history.url", cfg.History.URL)
	v.SetDefault("history.redis_addr", cfg.History.RedisAddr)
	v.SetDefault("history.timeout", cfg.History.Timeout)

	v.SetDefault("pedagogy.alt_language_default", cfg.Pedagogy.AltLanguageDefault)
	v.SetDefault("pedagogy.vocabulary_file", cfg.Pedagogy.VocabularyFile)
	v.SetDefault("pedagogy.history_turns", cfg.Pedagogy.HistoryTurns)

	v.SetDefault("quiz.finish_delay", cfg.Quiz.FinishDelay)
	v.SetDefault("quiz.timeout", cfg.Quiz.Timeout)

	v.SetDefault("server.addr", cfg.Server.Addr)
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case BackendFile, BackendSQLite, BackendHTTP, BackendRedis:
	default:
		return fmt.Errorf("unknown history backend: %q", c.History.Backend)
	}
	if c.History.Backend == BackendHTTP && c.History.URL == "" {
		return fmt.Errorf("history.url is required for the http history backend")
	}
	if c.Pedagogy.HistoryTurns < 0 {
		return fmt.Errorf("pedagogy.history_turns must not be negative")
	}
	if c.Pedagogy.AltLanguageDefault == "" {
		return fmt.Errorf("pedagogy.alt_language_default must not be empty")
	}
	return nil
}

// LLMProviderConfig maps the llm section onto the provider factory's
// Config. When no provider is named, standard API key variables are probed.
// The boolean is false when no provider could be determined.
func (c *Config) LLMProviderConfig() (llm.Config, bool) {
	var out llm.Config
	if c.LLM.Provider == "" {
		discovered, ok := llm.DiscoverConfig()
		if !ok {
			return llm.Config{}, false
		}
		out = discovered
	} else {
		out = llm.DefaultConfig()
		out.Provider = c.LLM.Provider
	}

	if c.LLM.GroqAPIKey != "" {
		out.Groq.APIKey = c.LLM.GroqAPIKey
	}
	if c.LLM.GroqBaseURL != "" {
		out.Groq.BaseURL = c.LLM.GroqBaseURL
	}
	if c.LLM.OpenAIAPIKey != "" {
		out.OpenAI.APIKey = c.LLM.OpenAIAPIKey
	}
	if c.LLM.OpenAIBaseURL != "" {
		out.OpenAI.BaseURL = c.LLM.OpenAIBaseURL
	}
	if c.LLM.AnthropicAPIKey != "" {
		out.Anthropic.APIKey = c.LLM.AnthropicAPIKey
	}
	if c.LLM.GeminiAPIKey != "" {
		out.Gemini.APIKey = c.LLM.GeminiAPIKey
	}
	if c.LLM.OpenRouterAPIKey != "" {
		out.OpenRouter.APIKey = c.LLM.OpenRouterAPIKey
	}

	if c.LLM.Model != "" {
		switch out.Provider {
		case "groq":
			out.Groq.Model = c.LLM.Model
		case "openai":
			out.OpenAI.Model = c.LLM.Model
		case "anthropic":
			out.Anthropic.Model = c.LLM.Model
		case "gemini":
			out.Gemini.Model = c.LLM.Model
		case "openrouter":
			out.OpenRouter.Model = c.LLM.Model
		}
	}
	if c.LLM.Timeout > 0 {
		out.Timeout = c.LLM.Timeout
	}
	if c.LLM.RetryAttempts > 0 {
		out.Retry.MaxAttempts = c.LLM.RetryAttempts
	}
	return out, true
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vidyadost"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "vidyadost"), nil
}

func defaultHistoryDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vidyadost", "history")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "history"
	}
	return filepath.Join(home, ".local", "share", "vidyadost", "history")
}
