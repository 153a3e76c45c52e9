// Package chunker splits extracted document text into ordered fragments.
// Three interchangeable strategies are supported: fixed-size windows with
// overlap, semantic grouping of similar sentences, and structure-based
// splitting on markdown headings and blank lines. Every strategy is a pure
// function of its input and parameters.
package chunker

import (
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Strategy selects a chunking algorithm.
type Strategy string

const (
	// Fixed advances a window of Params.Size runes with stride Size-Overlap.
	Fixed Strategy = "fixed"
	// Semantic groups consecutive sentences while their bag-of-words cosine
	// similarity to the current chunk stays at or above Params.Threshold.
	Semantic Strategy = "semantic"
	// StructureBased starts a chunk at every markdown heading and closes
	// chunks on blank lines.
	StructureBased Strategy = "structure_based"
)

// Default parameter values.
const (
	DefaultSize      = 1000
	DefaultOverlap   = 200
	DefaultThreshold = 0.5
)

// Strategies lists every supported strategy in display order.
var Strategies = []Strategy{Fixed, Semantic, StructureBased}

// ParseStrategy converts a strategy name into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case Fixed:
		return Fixed, nil
	case Semantic:
		return Semantic, nil
	case StructureBased:
		return StructureBased, nil
	default:
		return "", fmt.Errorf("%w: unknown chunking strategy %q (valid: fixed, semantic, structure_based)", rag.ErrInvalidParameter, s)
	}
}

// Params carries the tuning knobs for every strategy. Strategies ignore the
// fields that do not apply to them.
type Params struct {
	// Size is the fixed window length in runes.
	Size int
	// Overlap is the number of runes shared by consecutive fixed windows.
	Overlap int
	// Threshold is the minimum cosine similarity for the semantic strategy
	// to extend the current chunk, in [0, 1].
	Threshold float64
}

// DefaultParams returns Size 1000, Overlap 200, Threshold 0.5.
func DefaultParams() Params {
	return Params{Size: DefaultSize, Overlap: DefaultOverlap, Threshold: DefaultThreshold}
}

// Chunker splits text into an ordered sequence of fragments.
type Chunker interface {
	// Chunk returns the fragments of text in source order.
	Chunk(text string) ([]string, error)
}

// New returns the Chunker for strategy after validating the parameters it uses.
func New(strategy Strategy, p Params) (Chunker, error) {
	switch strategy {
	case Fixed:
		if err := validateFixed(p.Size, p.Overlap); err != nil {
			return nil, err
		}
		return fixedChunker{size: p.Size, overlap: p.Overlap}, nil
	case Semantic:
		if p.Threshold < 0 || p.Threshold > 1 {
			return nil, fmt.Errorf("%w: semantic threshold must be within [0, 1], got %g", rag.ErrInvalidParameter, p.Threshold)
		}
		return semanticChunker{threshold: p.Threshold}, nil
	case StructureBased:
		return structureChunker{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", rag.ErrInvalidParameter, strategy)
	}
}

// Fragments chunks text and wraps each chunk as a rag.Fragment carrying its
// sequence index and sourceID.
func Fragments(c Chunker, text, sourceID string) ([]rag.Fragment, error) {
	chunks, err := c.Chunk(text)
	if err != nil {
		return nil, err
	}
	out := make([]rag.Fragment, len(chunks))
	for i, t := range chunks {
		out[i] = rag.Fragment{Text: t, SequenceIndex: i, SourceID: sourceID}
	}
	return out, nil
}
