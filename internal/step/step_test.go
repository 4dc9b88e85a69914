// ABOUTME: Tests for StepAction JSON encoding and decoding
// ABOUTME: Covers discriminator output, Decode errors, and final text selection

package step

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswer_MarshalIncludesDiscriminator(t *testing.T) {
	data, err := json.Marshal(Answer{
		Think:      "done",
		Answer:     "42",
		References: []Reference{{ExactQuote: "the answer", URL: "https://example.com"}},
	})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "answer", fields["action"])
	assert.Equal(t, "done", fields["think"])
	assert.Equal(t, "42", fields["answer"])
}

func TestDecode_AllKinds(t *testing.T) {
	steps := []Action{
		Answer{Think: "t1", Answer: "a"},
		Search{Think: "t2", SearchRequests: []string{"go channels"}},
		Reflect{Think: "t3", QuestionsToAnswer: []string{"why?"}},
		Visit{Think: "t4", URLTargets: []string{"https://go.dev"}},
	}

	for _, s := range steps {
		t.Run(string(s.Kind()), func(t *testing.T) {
			data, err := json.Marshal(s)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, s, decoded)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"action":"dance","think":"?"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestFinalText(t *testing.T) {
	assert.Equal(t, "the answer", FinalText(Answer{Think: "thinking", Answer: "the answer"}))
	assert.Equal(t, "still looking", FinalText(Search{Think: "still looking"}))
	assert.Equal(t, "", FinalText(nil))
}

func TestWithThought(t *testing.T) {
	updated := WithThought(Visit{Think: "old", URLTargets: []string{"u"}}, "new")
	assert.Equal(t, Visit{Think: "new", URLTargets: []string{"u"}}, updated)

	assert.Equal(t, Reflect{Think: "first"}, WithThought(nil, "first"))
}

func TestIsAnswer(t *testing.T) {
	assert.True(t, IsAnswer(Answer{}))
	assert.False(t, IsAnswer(Reflect{}))
	assert.False(t, IsAnswer(nil))
}
