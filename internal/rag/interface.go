// Package rag holds the retrieval core shared by every query mode: the
// fragment and document types, the similarity index (in-memory or backed by
// an ephemeral Qdrant collection), the BM25 lexical ranker and weighted
// reciprocal-rank fusion. Collaborators such as the embedder plug in through
// the interfaces defined here so the orchestrator never depends on a
// specific backend.
package rag

import (
	"context"
)

// Fragment is a contiguous slice of source text produced by a chunking
// strategy. Fragments are immutable once created.
type Fragment struct {
	// Text is the fragment content.
	Text string

	// SequenceIndex is the fragment's position in chunking order, starting at 0.
	SequenceIndex int

	// SourceID identifies the originating document (path or URL).
	SourceID string
}

// Metadata is the per-entry metadata stored alongside each embedding.
type Metadata struct {
	// Index is the sequence index of the fragment the entry was built from.
	Index int `json:"index"`

	// Source is the document path or URL the fragment came from.
	Source string `json:"source"`
}

// MetadataFor returns the index metadata describing f.
func MetadataFor(f Fragment) Metadata {
	return Metadata{Index: f.SequenceIndex, Source: f.SourceID}
}

// Document is a single ranked hit returned by a search, a lexical ranking,
// or a fusion of several rankings.
type Document struct {
	// Content is the fragment text.
	Content string `json:"text"`

	// Metadata identifies the fragment within its source document.
	Metadata Metadata `json:"metadata"`

	// Score is the relevance assigned by whichever ranker produced the hit:
	// cosine similarity for vector search, BM25 for lexical ranking, the
	// fused reciprocal-rank score after fusion.
	Score float64 `json:"score"`
}

// Entry is one (text, embedding, metadata) triple held by a similarity index.
type Entry struct {
	// Text is the fragment content.
	Text string

	// Embedding is the fragment's dense vector.
	Embedding []float32

	// Metadata identifies the fragment.
	Metadata Metadata
}

// Filter reports whether an entry with the given metadata takes part in a
// search. A nil Filter accepts every entry.
type Filter func(Metadata) bool

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines and must
// wrap provider failures with ErrEmbedding.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a frozen, read-only similarity index. Search may be called
// concurrently from multiple goroutines.
type VectorIndex interface {
	// Search returns the top min(k, matching) entries ordered by descending
	// cosine similarity to query. Entries rejected by filter are skipped.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]Document, error)

	// Len returns the number of entries in the index.
	Len() int

	// Close releases any resources held by the index.
	Close() error
}

// IndexFactory builds a frozen VectorIndex from a complete set of entries.
// Each call produces an independent index owned by the caller.
type IndexFactory interface {
	// Build constructs the index. Entries keep their order, which is also
	// the tie-break order for equal scores.
	Build(ctx context.Context, entries []Entry) (VectorIndex, error)
}

// Retriever fetches the most relevant documents for a natural-language query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
