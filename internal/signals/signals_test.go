package signals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	d := NewDefaultDetector()

	tests := []struct {
		text string
		want Signals
	}{
		{"I don't know", Signals{Miss: true}},
		{"idk", Signals{Miss: true}},
		{"IDK!!", Signals{Miss: true}},
		{"I don’t know", Signals{Miss: true}},
		{"Honestly, no   idea.", Signals{Miss: true}},
		{"got it", Signals{Comprehension: true}},
		{"I understand", Signals{Comprehension: true}},
		{"Can you explain in Hindi?", Signals{LanguageSwitch: true}},
		{"please quiz me", Signals{StartQuiz: true}},
		{"Got it, now test me", Signals{Comprehension: true, StartQuiz: true}},
		{"What is photosynthesis?", Signals{}},
		{"kidkit", Signals{}},
		{"I didn't understand", Signals{Miss: true}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.text))
		})
	}
}

func TestDetect_MultipleSignals(t *testing.T) {
	s := NewDefaultDetector().Detect("I understand the first part but I'm not sure about the rest")
	assert.True(t, s.Miss)
	assert.True(t, s.Comprehension)
	assert.True(t, s.Any())
}

func TestNewDetector_CustomVocabulary(t *testing.T) {
	d, err := NewDetector(Vocabulary{
		Miss:          []string{"pata nahi"},
		Comprehension: []string{"samajh gaya", "a+b"},
	})
	require.NoError(t, err)

	assert.True(t, d.Detect("Pata nahi").Miss)
	assert.True(t, d.Detect("haan samajh gaya").Comprehension)
	assert.True(t, d.Detect("so a+b then").Comprehension, "phrases are literal, not patterns")
	assert.False(t, d.Detect("idk").Miss)
	assert.False(t, d.Detect("quiz me").StartQuiz, "empty list matches nothing")
}

func TestLoadVocabulary_FallsBackPerList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("miss:\n  - \"samajh nahi aaya\"\n"), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"samajh nahi aaya"}, v.Miss)

	def, err := DefaultVocabulary()
	require.NoError(t, err)
	assert.Equal(t, def.Comprehension, v.Comprehension)

	_, err = LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
