// Package signals classifies a student's utterance into pedagogy signals
// by phrase matching. The phrase lists are data, loaded from YAML.
package signals

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Signals are the independent booleans detected in one utterance. Several
// may be true at once; the pedagogy state machine resolves precedence.
type Signals struct {
	Miss           bool
	Comprehension  bool
	LanguageSwitch bool
	StartQuiz      bool
}

// Any reports whether at least one signal matched.
func (s Signals) Any() bool {
	return s.Miss || s.Comprehension || s.LanguageSwitch || s.StartQuiz
}

// Vocabulary holds the phrase list for each signal.
type Vocabulary struct {
	Miss           []string `yaml:"miss"`
	Comprehension  []string `yaml:"comprehension"`
	LanguageSwitch []string `yaml:"language_switch"`
	StartQuiz      []string `yaml:"start_quiz"`
}

// Detector matches utterances against a compiled Vocabulary.
type Detector struct {
	miss           *regexp.Regexp
	comprehension  *regexp.Regexp
	languageSwitch *regexp.Regexp
	startQuiz      *regexp.Regexp
}

// DefaultVocabulary returns the built-in phrase lists.
func DefaultVocabulary() (Vocabulary, error) {
	return ParseVocabulary(defaultVocabulary)
}

// ParseVocabulary decodes a YAML vocabulary document.
func ParseVocabulary(raw []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	return v, nil
}

// LoadVocabulary reads a vocabulary file. An empty path yields the
// built-in vocabulary. Lists missing from the file fall back to the
// built-in lists.
func LoadVocabulary(path string) (Vocabulary, error) {
	def, err := DefaultVocabulary()
	if err != nil {
		return Vocabulary{}, err
	}
	if path == "" {
		return def, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}
	v, err := ParseVocabulary(raw)
	if err != nil {
		return Vocabulary{}, err
	}
	if len(v.Miss) == 0 {
		v.Miss = def.Miss
	}
	if len(v.Comprehension) == 0 {
		v.Comprehension = def.Comprehension
	}
	if len(v.LanguageSwitch) == 0 {
		v.LanguageSwitch = def.LanguageSwitch
	}
	if len(v.StartQuiz) == 0 {
		v.StartQuiz = def.StartQuiz
	}
	return v, nil
}

// NewDetector compiles v.
func NewDetector(v Vocabulary) (*Detector, error) {
	d := &Detector{}
	var err error
	if d.miss, err = compile(v.Miss); err != nil {
		return nil, fmt.Errorf("miss phrases: %w", err)
	}
	if d.comprehension, err = compile(v.Comprehension); err != nil {
		return nil, fmt.Errorf("comprehension phrases: %w", err)
	}
	if d.languageSwitch, err = compile(v.LanguageSwitch); err != nil {
		return nil, fmt.Errorf("language switch phrases: %w", err)
	}
	if d.startQuiz, err = compile(v.StartQuiz); err != nil {
		return nil, fmt.Errorf("quiz phrases: %w", err)
	}
	return d, nil
}

// NewDefaultDetector compiles the built-in vocabulary.
func NewDefaultDetector() *Detector {
	v, err := DefaultVocabulary()
	if err != nil {
		panic(err)
	}
	d, err := NewDetector(v)
	if err != nil {
		panic(err)
	}
	return d
}

// Detect classifies text. It has no side effects.
func (d *Detector) Detect(text string) Signals {
	text = normalize(text)
	return Signals{
		Miss:           match(d.miss, text),
		Comprehension:  match(d.comprehension, text),
		LanguageSwitch: match(d.languageSwitch, text),
		StartQuiz:      match(d.startQuiz, text),
	}
}

func match(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}

// compile builds one case-insensitive alternation. A nil result matches
// nothing.
func compile(phrases []string) (*regexp.Regexp, error) {
	var parts []string
	for _, p := range phrases {
		p = normalize(p)
		if p == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(p))
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?i)(?:^|[^\pL\pN'])(?:` + strings.Join(parts, "|") + `)(?:$|[^\pL\pN'])`)
}

// normalize folds typographic apostrophes and collapses whitespace.
func normalize(s string) string {
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
