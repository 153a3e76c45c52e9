package rag

import (
	"math"
	"slices"
)

// BM25Params are the Okapi BM25 tuning constants.
type BM25Params struct {
	// K1 controls term-frequency saturation.
	K1 float64
	// B controls document-length normalisation (0 disables it).
	B float64
	// Epsilon scales the floor applied to negative idf values, as a fraction
	// of the corpus average idf.
	Epsilon float64
}

// DefaultBM25Params returns k1=1.5, b=0.75, epsilon=0.25.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

// BM25 is an Okapi BM25 ranker over a fixed fragment collection. It is built
// once per document and is read-only afterwards, so TopK and Scores may be
// called concurrently.
type BM25 struct {
	// fragments is the ranked corpus in sequence order.
	fragments []Fragment
	// freqs holds per-fragment term frequencies, parallel to fragments.
	freqs []map[string]int
	// lengths holds per-fragment token counts, parallel to fragments.
	lengths []int
	// avgLen is the mean token count across the corpus.
	avgLen float64
	// idf maps each corpus term to its (floored) inverse document frequency.
	idf map[string]float64
	// params are the tuning constants.
	params BM25Params
}

// NewBM25 tokenizes every fragment and precomputes document frequencies.
// Terms occurring in more than half the corpus get a negative raw idf; those
// are floored to Epsilon times the average idf.
func NewBM25(fragments []Fragment, params BM25Params) *BM25 {
	r := &BM25{
		fragments: fragments,
		freqs:     make([]map[string]int, len(fragments)),
		lengths:   make([]int, len(fragments)),
		idf:       make(map[string]float64),
		params:    params,
	}

	docFreq := make(map[string]int)
	total := 0
	for i, f := range fragments {
		tokens := Tokenize(f.Text)
		counts := make(map[string]int, len(tokens))
		for _, t := range tokens {
			counts[t]++
		}
		r.freqs[i] = counts
		r.lengths[i] = len(tokens)
		total += len(tokens)
		for t := range counts {
			docFreq[t]++
		}
	}
	if len(fragments) > 0 {
		r.avgLen = float64(total) / float64(len(fragments))
	}

	n := float64(len(fragments))
	idfSum := 0.0
	var negative []string
	for term, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		r.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		floor := params.Epsilon * idfSum / float64(len(docFreq))
		for _, term := range negative {
			r.idf[term] = floor
		}
	}
	return r
}

// Len returns the number of fragments in the corpus.
func (r *BM25) Len() int { return len(r.fragments) }

// Scores returns the BM25 score of every fragment for query, parallel to
// the corpus. Repeated query terms contribute once per occurrence.
func (r *BM25) Scores(query string) []float64 {
	scores := make([]float64, len(r.fragments))
	k1, b := r.params.K1, r.params.B
	for _, term := range Tokenize(query) {
		idf, ok := r.idf[term]
		if !ok {
			continue
		}
		for i, counts := range r.freqs {
			tf := float64(counts[term])
			if tf == 0 {
				continue
			}
			norm := 1 - b
			if r.avgLen > 0 {
				norm += b * float64(r.lengths[i]) / r.avgLen
			}
			scores[i] += idf * (tf * (k1 + 1)) / (tf + k1*norm)
		}
	}
	return scores
}

// TopK returns the min(k, corpus size) highest-scoring fragments, including
// zero-score fragments when fewer than k match. Ties keep sequence order.
func (r *BM25) TopK(query string, k int) []Document {
	if k <= 0 || len(r.fragments) == 0 {
		return []Document{}
	}
	scores := r.Scores(query)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return 0
		}
	})

	n := min(k, len(order))
	docs := make([]Document, 0, n)
	for _, i := range order[:n] {
		f := r.fragments[i]
		docs = append(docs, Document{Content: f.Text, Metadata: MetadataFor(f), Score: scores[i]})
	}
	return docs
}
