package quiz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Size is the number of questions in every quiz and options per question.
const Size = 4

// ErrEmptyQuiz is returned when a generator response holds no usable
// question.
var ErrEmptyQuiz = errors.New("quiz: no usable questions in response")

// Question is a cleaned multiple-choice question.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
}

// RawQuestion is a question as returned by a generator, before repair.
type RawQuestion struct {
	Question string
	Options  []string
	// AnswerIndex is nil when the generator omitted it or sent garbage.
	AnswerIndex *int
	// CorrectAnswer is the literal text (or letter) of the right option.
	CorrectAnswer string
}

// DecodeQuestions parses a generator payload of the form
// {"questions":[...]} leniently. The answer index may be a number or a
// numeric string; the correct answer text may appear under
// correct_answer, correctAnswer or answer. Prose around the JSON object
// is ignored.
func DecodeQuestions(raw []byte) ([]RawQuestion, error) {
	var payload struct {
		Questions []map[string]any `json:"questions"`
	}
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		inner, ok := extractObject(string(raw))
		if !ok {
			return nil, fmt.Errorf("decode quiz: %w", err)
		}
		if err := sonic.UnmarshalString(inner, &payload); err != nil {
			return nil, fmt.Errorf("decode quiz: %w", err)
		}
	}
	if len(payload.Questions) == 0 {
		return nil, ErrEmptyQuiz
	}

	out := make([]RawQuestion, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		rq := RawQuestion{Question: stringField(q, "question")}
		if opts, ok := q["options"].([]any); ok {
			for _, o := range opts {
				rq.Options = append(rq.Options, fmt.Sprint(o))
			}
		}
		rq.AnswerIndex = intField(q, "answerIndex", "answer_index", "correctIndex")
		if f, ok := q["answer"].(float64); ok && rq.AnswerIndex == nil && f == float64(int(f)) {
			i := int(f)
			rq.AnswerIndex = &i
		}
		rq.CorrectAnswer = stringField(q, "correct_answer", "correctAnswer", "answer")
		out = append(out, rq)
	}
	return out, nil
}

// Clean repairs raw questions into exactly Size questions:
//   - questions with an empty prompt or fewer than Size non-empty options
//     are rejected; extra options are dropped
//   - a valid answer index is kept; otherwise the correct answer text is
//     located among the options, defaulting to option 0
//   - at most Size questions are kept; missing ones are filled with
//     placeholders about topic
//
// ErrEmptyQuiz is returned when no question survives.
func Clean(raw []RawQuestion, topic string) ([]Question, error) {
	var out []Question
	for _, rq := range raw {
		if len(out) == Size {
			break
		}
		q, ok := cleanOne(rq)
		if ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyQuiz
	}
	for _, ph := range Placeholders(topic) {
		if len(out) == Size {
			break
		}
		out = append(out, ph)
	}
	return out, nil
}

func cleanOne(rq RawQuestion) (Question, bool) {
	prompt := strings.TrimSpace(rq.Question)
	if prompt == "" {
		return Question{}, false
	}
	var opts []string
	for _, o := range rq.Options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	if len(opts) < Size {
		return Question{}, false
	}
	opts = opts[:Size]

	idx := 0
	switch {
	case rq.AnswerIndex != nil && *rq.AnswerIndex >= 0 && *rq.AnswerIndex < Size:
		idx = *rq.AnswerIndex
	default:
		if i, ok := locateAnswer(opts, rq.CorrectAnswer); ok {
			idx = i
		}
	}
	return Question{Question: prompt, Options: opts, AnswerIndex: idx}, true
}

// locateAnswer finds answer among opts by exact text, then case-folded
// text, then an option letter such as "C" or "c)".
func locateAnswer(opts []string, answer string) (int, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, false
	}
	for i, o := range opts {
		if o == answer {
			return i, true
		}
	}
	for i, o := range opts {
		if strings.EqualFold(o, answer) {
			return i, true
		}
	}
	letter := strings.TrimRight(strings.ToUpper(answer), ").:")
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] < 'A'+Size {
		return int(letter[0] - 'A'), true
	}
	return 0, false
}

// Placeholders returns a fixed quiz about topic used when generation fails.
func Placeholders(topic string) []Question {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "this topic"
	}
	return []Question{
		{
			Question:    fmt.Sprintf("What did we learn about %s today?", topic),
			Options:     []string{fmt.Sprintf("The main idea of %s", topic), "Nothing at all", "Only a story", "A song"},
			AnswerIndex: 0,
		},
		{
			Question:    fmt.Sprintf("Which is the best way to understand %s better?", topic),
			Options:     []string{"Skip the lesson", fmt.Sprintf("Ask questions about %s", topic), "Guess every answer", "Stop reading"},
			AnswerIndex: 1,
		},
		{
			Question:    fmt.Sprintf("Where can you see %s in real life?", topic),
			Options:     []string{"Nowhere", "Only in dreams", fmt.Sprintf("In examples around us that show %s", topic), "Only on the moon"},
			AnswerIndex: 2,
		},
		{
			Question:    fmt.Sprintf("How can you check that you understood %s?", topic),
			Options:     []string{"Forget it quickly", "Never practise", "Avoid questions", fmt.Sprintf("Explain %s to a friend", topic)},
			AnswerIndex: 3,
		},
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		}
	}
	return ""
}

func intField(m map[string]any, keys ...string) *int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			if v == float64(int(v)) {
				i := int(v)
				return &i
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return &i
			}
		}
	}
	return nil
}

// extractObject returns the outermost {...} span of s.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
