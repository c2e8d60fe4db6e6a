package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/vidyadost/vidyadost/internal/llm"
	"github.com/vidyadost/vidyadost/internal/logger"
)

const quizSystemPrompt = `You are a teacher creating a short 4-question multiple-choice quiz. ` +
	`Return JSON only, in the form {"questions":[{"question":"...","options":["A","B","C","D"],"answerIndex":0}]}. ` +
	`Each question has exactly 4 options and answerIndex is the 0-based index of the correct option. ` +
	`Base the questions on what was explained in the conversation and keep the language simple for the student's age.`

// Schema is the response shape requested from the model. It is kept
// strict-compatible so every provider can enforce it.
func Schema() *llm.Schema {
	return &llm.Schema{
		Name:        "comprehension-quiz",
		Description: "Four multiple-choice questions checking what the student just learned",
		Definition: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"questions"},
			"properties": map[string]any{
				"questions": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []any{"question", "options", "answerIndex"},
						"properties": map[string]any{
							"question": map[string]any{"type": "string"},
							"options": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "string"},
							},
							"answerIndex": map[string]any{"type": "integer"},
						},
					},
				},
			},
		},
	}
}

// LLMGenerator asks a language model for quiz questions.
type LLMGenerator struct {
	provider llm.Provider
	log      *logger.Logger
}

func NewLLMGenerator(p llm.Provider, log *logger.Logger) *LLMGenerator {
	return &LLMGenerator{provider: p, log: logger.OrNop(log)}
}

// Generate sends the whole conversation followed by a quiz request. A
// response that fails schema validation is still decoded leniently so a
// missing or wrong answerIndex can be repaired by Clean.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) ([]RawQuestion, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeQuiz)

	msgs := make([]llm.Message, 0, 2*len(req.Turns)+1)
	for _, t := range req.Turns {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.User},
			llm.Message{Role: llm.RoleAssistant, Content: t.Assistant},
		)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt(req)})

	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      quizSystemPrompt,
		Messages:    msgs,
		Schema:      Schema(),
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if err != nil {
		var invalid *llm.ErrInvalidResponse
		if errors.As(err, &invalid) && len(invalid.Content) > 0 {
			g.log.Warn("quiz response failed validation, decoding leniently", "error", invalid.Err)
			return DecodeQuestions(invalid.Content)
		}
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	return DecodeQuestions(resp.Content)
}

func prompt(req Request) string {
	return fmt.Sprintf("Create 4 MCQ questions for subject=%s, topic=%s, grade=%s, age=%d.",
		req.Subject, req.Topic, req.Grade, req.Age)
}
