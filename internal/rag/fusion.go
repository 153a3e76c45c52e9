package rag

import (
	"fmt"
	"slices"
)

// DefaultRRFConstant is the rank offset c in the reciprocal-rank formula
// w / (rank + c). Larger values flatten the advantage of top ranks.
const DefaultRRFConstant = 60

// fragmentKey identifies a fragment across ranked lists.
type fragmentKey struct {
	source string
	index  int
}

// Fuse merges ranked lists with weighted reciprocal-rank fusion. A document
// at 1-based rank r in list i contributes weights[i] / (r + c) to its fused
// score. Documents are identified by source and sequence index, so a
// fragment present in several lists appears once with the summed score and
// the content of its first occurrence. The result is sorted by descending
// fused score; ties keep first-appearance order (list by list, rank by rank).
// Fuse never truncates: callers apply their own limit.
func Fuse(lists [][]Document, weights []float64, c int) ([]Document, error) {
	if len(lists) != len(weights) {
		return nil, fmt.Errorf("%w: %d ranked lists but %d weights", ErrInvalidParameter, len(lists), len(weights))
	}
	if c <= 0 {
		return nil, fmt.Errorf("%w: rank constant must be positive, got %d", ErrInvalidParameter, c)
	}
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: weight %d is negative (%g)", ErrInvalidParameter, i, w)
		}
	}

	pos := make(map[fragmentKey]int)
	var fused []Document
	for li, list := range lists {
		for rank, doc := range list {
			key := fragmentKey{source: doc.Metadata.Source, index: doc.Metadata.Index}
			contrib := weights[li] / float64(rank+1+c)
			if p, ok := pos[key]; ok {
				fused[p].Score += contrib
				continue
			}
			pos[key] = len(fused)
			fused = append(fused, Document{Content: doc.Content, Metadata: doc.Metadata, Score: contrib})
		}
	}

	slices.SortStableFunc(fused, func(a, b Document) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if fused == nil {
		fused = []Document{}
	}
	return fused, nil
}
