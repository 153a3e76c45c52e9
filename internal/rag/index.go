package rag

import (
	"context"
	"fmt"
	"slices"
)

// Builder accumulates index entries during the build phase. It is not safe
// for concurrent use. Call Freeze once all entries are added to obtain the
// read-only MemoryIndex used at query time.
type Builder struct {
	// entries holds the triples in insertion order.
	entries []Entry

	// frozen is set by Freeze; further Add calls fail with ErrFrozen.
	frozen bool
}

// NewBuilder returns an empty Builder with room for capacity entries.
func NewBuilder(capacity int) *Builder {
	if capacity < 0 {
		capacity = 0
	}
	return &Builder{entries: make([]Entry, 0, capacity)}
}

// Add appends an entry. No deduplication or embedding-length validation is
// performed; the build phase guarantees consistent dimensionality.
func (b *Builder) Add(text string, embedding []float32, metadata Metadata) error {
	if b.frozen {
		return ErrFrozen
	}
	b.entries = append(b.entries, Entry{Text: text, Embedding: embedding, Metadata: metadata})
	return nil
}

// Freeze ends the build phase and returns the immutable index. The builder
// hands its entries over and rejects any later Add.
func (b *Builder) Freeze() *MemoryIndex {
	b.frozen = true
	idx := &MemoryIndex{entries: b.entries}
	b.entries = nil
	return idx
}

// MemoryIndex is a frozen brute-force cosine similarity index. It is safe for
// concurrent Search calls because nothing mutates it after Freeze.
type MemoryIndex struct {
	// entries is the read-only entry list in insertion order.
	entries []Entry
}

// scored pairs an entry position with its similarity to the query.
type scored struct {
	pos   int
	score float64
}

// Search computes the cosine similarity of query against every entry that
// passes filter and returns the best min(k, matching) as Documents. Ties
// keep insertion order. A non-positive k or an empty index yields an empty
// result.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	if k <= 0 || len(m.entries) == 0 {
		return []Document{}, nil
	}

	hits := make([]scored, 0, len(m.entries))
	for i := range m.entries {
		if filter != nil && !filter(m.entries[i].Metadata) {
			continue
		}
		hits = append(hits, scored{pos: i, score: Cosine(query, m.entries[i].Embedding)})
	}

	slices.SortStableFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	n := min(k, len(hits))
	docs := make([]Document, 0, n)
	for _, h := range hits[:n] {
		e := m.entries[h.pos]
		docs = append(docs, Document{Content: e.Text, Metadata: e.Metadata, Score: h.score})
	}
	return docs, nil
}

// Len returns the number of entries in the index.
func (m *MemoryIndex) Len() int { return len(m.entries) }

// Close is a no-op; the index is released with its last reference.
func (m *MemoryIndex) Close() error { return nil }

// MemoryFactory builds MemoryIndex instances. It is the default IndexFactory.
type MemoryFactory struct{}

// Build adds every entry to a fresh Builder and freezes it.
func (MemoryFactory) Build(ctx context.Context, entries []Entry) (VectorIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: build index: %w", err)
	}
	b := NewBuilder(len(entries))
	for _, e := range entries {
		if err := b.Add(e.Text, e.Embedding, e.Metadata); err != nil {
			return nil, fmt.Errorf("rag: build index: %w", err)
		}
	}
	return b.Freeze(), nil
}
