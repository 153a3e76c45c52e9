package embedder

import (
	"context"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Batched splits large embedding requests into sequential calls of at most
// size texts each and concatenates the results in input order.
type Batched struct {
	inner rag.Embedder
	size  int
}

// NewBatched wraps inner. A size <= 0 disables splitting.
func NewBatched(inner rag.Embedder, size int) *Batched {
	return &Batched{inner: inner, size: size}
}

// Embed implements rag.Embedder.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if b.size <= 0 || len(texts) <= b.size {
		return b.inner.Embed(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.size {
		end := min(start+b.size, len(texts))
		vecs, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, embedErr("batch [%d:%d]: expected %d embeddings, got %d", start, end, end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Unwrap returns the wrapped embedder.
func (b *Batched) Unwrap() rag.Embedder { return b.inner }
