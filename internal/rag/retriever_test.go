package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEmbedder returns a fixed vector per text.
type mapEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (m mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vecs[t]
		if !ok {
			return nil, fmt.Errorf("%w: no vector for %q", ErrEmbedding, t)
		}
		out[i] = v
	}
	return out, nil
}

func hybridFixture(t *testing.T) (*BM25, *VectorRetriever) {
	t.Helper()
	frags := fragments(
		"apples grow on trees",
		"the zebra crossing downtown",
		"orchards and fruit harvests",
	)
	vecs := map[string][]float32{
		frags[0].Text: {1, 0, 0},
		frags[1].Text: {0, 1, 0},
		frags[2].Text: {0, 0, 1},
		"zebra":       {0, 0.1, 1},
	}
	emb := mapEmbedder{vecs: vecs}

	entries := make([]Entry, len(frags))
	for i, f := range frags {
		entries[i] = Entry{Text: f.Text, Embedding: vecs[f.Text], Metadata: MetadataFor(f)}
	}
	idx, err := MemoryFactory{}.Build(context.Background(), entries)
	require.NoError(t, err)

	vr, err := NewVectorRetriever(emb, idx, 3)
	require.NoError(t, err)
	return NewBM25(frags, DefaultBM25Params()), vr
}

func TestNewVectorRetriever_NilArgs(t *testing.T) {
	t.Parallel()

	_, err := NewVectorRetriever(nil, NewBuilder(0).Freeze(), 1)
	assert.Error(t, err)
	_, err = NewVectorRetriever(mapEmbedder{}, nil, 1)
	assert.Error(t, err)
}

func TestVectorRetriever_EmbeddingFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider down")
	vr, err := NewVectorRetriever(mapEmbedder{err: fmt.Errorf("%w: %w", ErrEmbedding, boom)}, NewBuilder(0).Freeze(), 4)
	require.NoError(t, err)

	_, err = vr.Retrieve(context.Background(), "q", 0)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, boom)
}

func TestVectorRetriever_WithFilter(t *testing.T) {
	t.Parallel()

	_, vr := hybridFixture(t)
	docs, err := vr.WithFilter(func(m Metadata) bool { return m.Index != 2 }).Retrieve(context.Background(), "zebra", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].Metadata.Index)
}

func TestHybridRetriever_SurfacesLexicalAndVectorHits(t *testing.T) {
	t.Parallel()

	lex, vr := hybridFixture(t)
	hr, err := NewHybridRetriever(lex, vr, HybridOptions{})
	require.NoError(t, err)

	docs, err := hr.Retrieve(context.Background(), "zebra", 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(docs), 2)

	// "zebra" appears only in fragment 1; its embedding is nearest fragment 2.
	top := []int{docs[0].Metadata.Index, docs[1].Metadata.Index}
	assert.ElementsMatch(t, []int{1, 2}, top)
}

func TestHybridRetriever_Limit(t *testing.T) {
	t.Parallel()

	lex, vr := hybridFixture(t)
	hr, err := NewHybridRetriever(lex, vr, HybridOptions{Limit: 1})
	require.NoError(t, err)

	docs, err := hr.Retrieve(context.Background(), "zebra", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
