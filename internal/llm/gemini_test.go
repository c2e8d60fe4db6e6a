package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGeminiSchema(t *testing.T) {
	schema := buildGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question":    map[string]any{"type": "string"},
						"options":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"answerIndex": map[string]any{"type": "integer"},
						"level":       map[string]any{"type": "string", "enum": []any{"easy", "hard"}},
					},
				},
			},
		},
		"required": []any{"questions"},
	})

	assert.EqualValues(t, "OBJECT", schema.Type)
	assert.Equal(t, []string{"questions"}, schema.Required)

	questions := schema.Properties["questions"]
	require.NotNil(t, questions)
	assert.EqualValues(t, "ARRAY", questions.Type)

	item := questions.Items
	require.NotNil(t, item)
	assert.Len(t, item.Properties, 4)
	assert.EqualValues(t, "INTEGER", item.Properties["answerIndex"].Type)
	assert.EqualValues(t, "STRING", item.Properties["options"].Items.Type)
	assert.Len(t, item.Properties["level"].Enum, 2)
}

func TestBuildGeminiConfig(t *testing.T) {
	cfg := buildGeminiConfig(Request{System: "Be kind.", MaxTokens: 300, Temperature: 0.4})

	assert.EqualValues(t, 300, cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.4, *cfg.Temperature, 0.0001)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "Be kind.", cfg.SystemInstruction.Parts[0].Text)
}
