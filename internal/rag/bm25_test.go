package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragments(texts ...string) []Fragment {
	out := make([]Fragment, len(texts))
	for i, t := range texts {
		out[i] = Fragment{Text: t, SequenceIndex: i, SourceID: "doc"}
	}
	return out
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hello", "world", "x_1", "42"}, Tokenize("Hello, WORLD! x_1 -- 42."))
	assert.Empty(t, Tokenize("  ...  "))
}

func TestBM25_RareTermRanksFirst(t *testing.T) {
	t.Parallel()

	r := NewBM25(fragments(
		"the cat sat on the mat",
		"dogs chase the cats around",
		"quantum chromodynamics lecture notes",
	), DefaultBM25Params())

	docs := r.TopK("Quantum notes", 2)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, docs[0].Metadata.Index)
	assert.Greater(t, docs[0].Score, 0.0)
	// Remaining slots are filled with zero-score fragments in sequence order.
	assert.Equal(t, 0, docs[1].Metadata.Index)
	assert.Zero(t, docs[1].Score)
}

func TestBM25_MatchesOkapiFormula(t *testing.T) {
	t.Parallel()

	r := NewBM25(fragments("apple banana", "cherry", "date"), DefaultBM25Params())
	scores := r.Scores("apple")

	// N=3, df=1: idf = ln(2.5) - ln(1.5). avgdl = 4/3, |d0| = 2.
	idf := math.Log(2.5) - math.Log(1.5)
	norm := 1 - 0.75 + 0.75*2/(4.0/3.0)
	want := idf * (1 * 2.5) / (1 + 1.5*norm)

	require.Len(t, scores, 3)
	assert.InDelta(t, want, scores[0], 1e-12)
	assert.Zero(t, scores[1])
	assert.Zero(t, scores[2])
}

func TestBM25_NegativeIDFIsFloored(t *testing.T) {
	t.Parallel()

	r := NewBM25(fragments("common alpha", "common beta", "common gamma"), DefaultBM25Params())

	raw := math.Log(0.5) - math.Log(3.5)
	pos := math.Log(2.5) - math.Log(1.5)
	floor := 0.25 * (3*pos + raw) / 4

	assert.InDelta(t, floor, r.idf["common"], 1e-12)
	assert.InDelta(t, pos, r.idf["alpha"], 1e-12)
}

func TestBM25_KLargerThanCorpus(t *testing.T) {
	t.Parallel()

	r := NewBM25(fragments("one", "two"), DefaultBM25Params())
	assert.Len(t, r.TopK("one", 10), 2)
	assert.Empty(t, r.TopK("one", 0))
}

func TestBM25_EmptyCorpus(t *testing.T) {
	t.Parallel()

	r := NewBM25(nil, DefaultBM25Params())
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.TopK("anything", 3))
	assert.Empty(t, r.Scores("anything"))
}
