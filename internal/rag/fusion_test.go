package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(text string, index int) Document {
	return Document{Content: text, Metadata: Metadata{Index: index, Source: "doc"}}
}

func TestFuse_MergesDuplicates(t *testing.T) {
	t.Parallel()

	lexical := []Document{doc("A", 0), doc("B", 1)}
	vector := []Document{doc("B", 1), doc("C", 2)}

	fused, err := Fuse([][]Document{lexical, vector}, []float64{0.5, 0.5}, DefaultRRFConstant)
	require.NoError(t, err)
	require.Len(t, fused, 3)

	assert.Equal(t, "B", fused[0].Content)
	assert.Equal(t, "A", fused[1].Content)
	assert.Equal(t, "C", fused[2].Content)
	assert.InDelta(t, 0.5/61+0.5/62, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.5/61, fused[1].Score, 1e-12)
	assert.InDelta(t, 0.5/62, fused[2].Score, 1e-12)
}

func TestFuse_WeightsShiftRanking(t *testing.T) {
	t.Parallel()

	lexical := []Document{doc("A", 0)}
	vector := []Document{doc("C", 2)}

	fused, err := Fuse([][]Document{lexical, vector}, []float64{0.2, 0.8}, DefaultRRFConstant)
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, "C", fused[0].Content)
}

func TestFuse_TiesKeepFirstAppearance(t *testing.T) {
	t.Parallel()

	fused, err := Fuse(
		[][]Document{{doc("A", 0)}, {doc("C", 2)}},
		[]float64{0.5, 0.5},
		DefaultRRFConstant,
	)
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, "A", fused[0].Content)
	assert.Equal(t, "C", fused[1].Content)
}

func TestFuse_Idempotent(t *testing.T) {
	t.Parallel()

	lists := [][]Document{
		{doc("A", 0), doc("B", 1), doc("D", 3)},
		{doc("C", 2), doc("A", 0), doc("B", 1)},
	}
	first, err := Fuse(lists, []float64{0.5, 0.5}, DefaultRRFConstant)
	require.NoError(t, err)
	second, err := Fuse(lists, []float64{0.5, 0.5}, DefaultRRFConstant)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFuse_InvalidParameters(t *testing.T) {
	t.Parallel()

	lists := [][]Document{{doc("A", 0)}}

	_, err := Fuse(lists, []float64{0.5, 0.5}, DefaultRRFConstant)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Fuse(lists, []float64{-1}, DefaultRRFConstant)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Fuse(lists, []float64{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFuse_EmptyLists(t *testing.T) {
	t.Parallel()

	fused, err := Fuse([][]Document{{}, {}}, []float64{0.5, 0.5}, DefaultRRFConstant)
	require.NoError(t, err)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}
