package rag

import (
	"context"
	"fmt"
)

var (
	_ Retriever = (*VectorRetriever)(nil)
	_ Retriever = (*HybridRetriever)(nil)
)

// VectorRetriever implements Retriever by combining an Embedder and a frozen
// VectorIndex. It embeds the query at retrieval time and delegates
// similarity search to the index.
type VectorRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the cosine similarity search.
	index VectorIndex

	// filter restricts the entries considered by every search. Nil accepts all.
	filter Filter

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewVectorRetriever constructs a VectorRetriever from the given Embedder and
// VectorIndex. defaultTopK sets the fallback result count when Retrieve is
// called with topK=0.
func NewVectorRetriever(embedder Embedder, index VectorIndex, defaultTopK int) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &VectorRetriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// WithFilter returns a copy of r that applies filter to every search.
func (r *VectorRetriever) WithFilter(filter Filter) *VectorRetriever {
	cp := *r
	cp.filter = filter
	return &cp
}

// Embed returns the query vector for query.
func (r *VectorRetriever) Embed(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", WithCategory(ErrEmbedding, err))
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector for query", ErrEmbedding)
	}
	return embeddings[0], nil
}

// Retrieve embeds the query and returns the top-k most relevant documents.
// If topK is 0 the defaultTopK configured at construction time is used.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vec, err := r.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, err := r.index.Search(ctx, vec, topK, r.filter)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}

// HybridOptions configures a HybridRetriever.
type HybridOptions struct {
	// TopK is the number of hits taken from each underlying ranker. Default 3.
	TopK int

	// LexicalWeight is the fusion weight of the BM25 list. Default 0.5.
	LexicalWeight float64

	// VectorWeight is the fusion weight of the vector list. Default 0.5.
	VectorWeight float64

	// RankConstant is the reciprocal-rank offset. Default DefaultRRFConstant.
	RankConstant int

	// Limit truncates the fused list when positive. Zero keeps every fused hit.
	Limit int
}

// HybridRetriever ranks with BM25 and vector search independently and fuses
// both lists with weighted reciprocal-rank fusion.
type HybridRetriever struct {
	lexical *BM25
	vector  *VectorRetriever
	opts    HybridOptions
}

// NewHybridRetriever constructs a HybridRetriever over a lexical ranker and a
// vector retriever built from the same fragments.
func NewHybridRetriever(lexical *BM25, vector *VectorRetriever, opts HybridOptions) (*HybridRetriever, error) {
	if lexical == nil {
		return nil, fmt.Errorf("rag: lexical ranker must not be nil")
	}
	if vector == nil {
		return nil, fmt.Errorf("rag: vector retriever must not be nil")
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.LexicalWeight == 0 && opts.VectorWeight == 0 {
		opts.LexicalWeight, opts.VectorWeight = 0.5, 0.5
	}
	if opts.RankConstant <= 0 {
		opts.RankConstant = DefaultRRFConstant
	}
	return &HybridRetriever{lexical: lexical, vector: vector, opts: opts}, nil
}

// Retrieve returns the fused ranking for query. topK overrides the per-ranker
// hit count when positive.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = h.opts.TopK
	}

	lexical := h.lexical.TopK(query, topK)
	vector, err := h.vector.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	fused, err := Fuse(
		[][]Document{lexical, vector},
		[]float64{h.opts.LexicalWeight, h.opts.VectorWeight},
		h.opts.RankConstant,
	)
	if err != nil {
		return nil, fmt.Errorf("rag: fuse rankings: %w", err)
	}
	if h.opts.Limit > 0 && len(fused) > h.opts.Limit {
		fused = fused[:h.opts.Limit]
	}
	return fused, nil
}
