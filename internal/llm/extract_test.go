package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_EquivalentWrappings(t *testing.T) {
	want := map[string]any{"relevance": 0.8, "sentiment": "positive", "topics": []any{"ai"}}

	inputs := map[string]string{
		"fenced":       "Here you go:\n```json\n{\"relevance\": 0.8, \"sentiment\": \"positive\", \"topics\": [\"ai\"]}\n```\nThanks!",
		"prose":        "Sure. The analysis is {\"relevance\": 0.8, \"sentiment\": \"positive\", \"topics\": [\"ai\"]} as requested.",
		"smart quotes": "{“relevance”: 0.8, “sentiment”: “positive”, “topics”: [“ai”]}",
		"bare":         `{"relevance":0.8,"sentiment":"positive","topics":["ai"]}`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := ExtractJSON(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	in := `prefix {"a": {"b": {"c": 1}}, "s": "curly } inside {"} trailing {"x": 2}`
	got, err := ExtractJSON(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": map[string]any{"c": float64(1)}},
		"s": "curly } inside {",
	}, got)
}

func TestExtractJSON_CurlyQuotesInsideStrings(t *testing.T) {
	in := "Here is the analysis: {\"relevance\": 0.8, \"topics\": [\"He said “hi” today\"], \"recommended_action\": \"retweet\"} thanks"
	got, err := ExtractJSON(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"relevance":          0.8,
		"topics":             []any{"He said “hi” today"},
		"recommended_action": "retweet",
	}, got)

	got, err = ExtractJSON(`note {"quote": "a } b “c” {"} end`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"quote": "a } b “c” {"}, got)
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := ExtractJSON("nothing to see")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ExtractJSON("{ unterminated")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestExtractJSON_InvalidObject(t *testing.T) {
	_, err := ExtractJSON("{relevance: high}")
	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "{relevance: high}", extractErr.Candidate)
}

func TestBuildStructuredPrompt(t *testing.T) {
	prompt := BuildStructuredPrompt(StructuredRequest{
		Instruction:   "  Score the post  ",
		Schema:        map[string]any{"type": "object"},
		RequireFences: true,
		CharLimit:     120,
		Examples:      []Example{{Input: "hello", Output: map[string]any{"relevance": 0.1}}},
	})

	assert.Contains(t, prompt, "Wrap the JSON in a single fenced code block")
	assert.Contains(t, prompt, "hard 120 characters limit")
	assert.Contains(t, prompt, "Task:\nScore the post\n")
	assert.Contains(t, prompt, `"type": "object"`)
	assert.Contains(t, prompt, "Example 1 - Output JSON:\n{\"relevance\":0.1}")
}
