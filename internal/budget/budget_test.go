package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Estimate(tc.input), "Estimate(%q)", tc.input)
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	assert.Equal(t, 14, EstimateMessages(msgs))
}

func docs(texts ...string) []rag.Document {
	out := make([]rag.Document, len(texts))
	for i, s := range texts {
		out[i] = rag.Document{Content: s, Metadata: rag.Metadata{Index: i, Source: "doc"}}
	}
	return out
}

func Test_EstimateDocuments(t *testing.T) {
	t.Parallel()
	// 40 chars = 10 tokens each, separator "\n\n---\n\n" = 7 chars = 1 token.
	d := docs(strings.Repeat("a", 40), strings.Repeat("b", 40))
	assert.Equal(t, 21, EstimateDocuments(d))
	assert.Zero(t, EstimateDocuments(nil))
}

func Test_TrimDocuments_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{schema.SystemMessage("sys")}
	assert.Len(t, TrimDocuments(fixed, docs("one", "two", "three"), DefaultMaxContextTokens), 3)
}

func Test_TrimDocuments_DropsLowestRanked(t *testing.T) {
	t.Parallel()
	d := docs(strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40))
	// One doc = 10 tokens, two = 21, three = 32.
	got := TrimDocuments(nil, d, 25)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Metadata.Index)
	assert.Equal(t, 1, got[1].Metadata.Index)
}

func Test_TrimDocuments_AllDroppedWhenFixedExceedsBudget(t *testing.T) {
	t.Parallel()
	fixed := []*schema.Message{
		schema.SystemMessage(strings.Repeat("x", 4*7000)), // ~7000 tokens
	}
	assert.Empty(t, TrimDocuments(fixed, docs("a", "b"), 6000))
}
