package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Hindi", cfg.Pedagogy.AltLanguageDefault)
	assert.Equal(t, 8, cfg.Pedagogy.HistoryTurns)
	assert.Equal(t, 2*time.Second, cfg.Quiz.FinishDelay)
	assert.Equal(t, BackendSQLite, cfg.History.Backend)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Empty(t, cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidyadost.yaml")
	yaml := `
profile:
  name: Asha
  age: 12
  second_language: Marathi
history:
  backend: file
  dir: /tmp/h
quiz:
  finish_delay: 500ms
log:
  level: info
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("VIDYADOST_PROFILE_AGE", "13")
	t.Setenv("VIDYADOST_PEDAGOGY_ALT_LANGUAGE_DEFAULT", "Tamil")
	t.Setenv("VIDYADOST_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Asha", cfg.Profile.Name)
	assert.Equal(t, 13, cfg.Profile.Age)
	assert.Equal(t, "Marathi", cfg.Profile.SecondLanguage)
	assert.Equal(t, "Tamil", cfg.Pedagogy.AltLanguageDefault)
	assert.Equal(t, BackendFile, cfg.History.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Quiz.FinishDelay)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.History.Backend = "tape"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.History.Backend = BackendHTTP
	assert.Error(t, cfg.Validate())
	cfg.History.URL = "http://localhost:8088"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Pedagogy.AltLanguageDefault = ""
	assert.Error(t, cfg.Validate())
}

func TestLLMProviderConfig(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "groq"
	cfg.LLM.GroqAPIKey = "gsk-test"
	cfg.LLM.Model = "llama-3.1-8b-instant"

	out, ok := cfg.LLMProviderConfig()
	require.True(t, ok)
	assert.Equal(t, "groq", out.Provider)
	assert.Equal(t, "gsk-test", out.Groq.APIKey)
	assert.Equal(t, "llama-3.1-8b-instant", out.Groq.Model)
	assert.Equal(t, 60*time.Second, out.Timeout)
	assert.NoError(t, out.Validate())
}

func TestLLMProviderConfig_NothingConfigured(t *testing.T) {
	for _, k := range []string{"GROQ_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
	_, ok := Default().LLMProviderConfig()
	assert.False(t, ok)
}
