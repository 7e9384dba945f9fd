package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectWithStage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		stage Stage
		key   string
	}{
		{
			name:  "plain json",
			input: `{"waypoints": [], "explanation": "ok"}`,
			stage: StageRaw,
			key:   "explanation",
		},
		{
			name:  "fenced json block with prose",
			input: "Here is the route:\n```json\n{\"explanation\": \"detour north\"}\n```\nGood luck.",
			stage: StageFenced,
			key:   "explanation",
		},
		{
			name:  "stray prose around an object",
			input: "Sure! {\"explanation\": \"wide arc\", \"waypoints\": [{\"x\": 1, \"y\": 2}]} Let me know.",
			stage: StageSlice,
			key:   "waypoints",
		},
		{
			name:  "unlabelled fence falls through to slice",
			input: "```\n{\"explanation\": \"x\"}\n```",
			stage: StageSlice,
			key:   "explanation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, stage := ObjectWithStage(tt.input)
			assert.Equal(t, tt.stage, stage)
			assert.Contains(t, obj, tt.key)
		})
	}
}

func TestObjectFailures(t *testing.T) {
	inputs := []string{
		"",
		"I cannot plan this route.",
		"{not json at all}",
		"} backwards {",
		"[1, 2, 3]",
		"null",
	}

	for _, input := range inputs {
		obj, stage := ObjectWithStage(input)
		require.NotNil(t, obj, input)
		assert.Empty(t, obj, input)
		assert.Equal(t, StageNone, stage, input)
	}
}

func TestObjectBrokenFencedBlock(t *testing.T) {
	// the slice spans the broken fence and the later object, so nothing decodes
	text := "```json\n{\"explanation\": \n```\nretry: {\"explanation\": \"second\"}"
	assert.Empty(t, Object(text))

	assert.Empty(t, Object("```json\n{broken}\n```"))
}
