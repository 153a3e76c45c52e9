// Package budget provides token budget estimation and context trimming for
// answer generation. Because several LLM backends with different tokenizers
// are supported, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose and code).
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Fits within 8k-context models while leaving room for the output.
	DefaultMaxContextTokens = 6000

	// ContextSeparator joins retrieved documents in the rendered context.
	ContextSeparator = "\n\n---\n\n"
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// EstimateDocuments returns the estimated token cost of docs once joined
// with ContextSeparator.
func EstimateDocuments(docs []rag.Document) int {
	total := 0
	for i, d := range docs {
		if i > 0 {
			total += Estimate(ContextSeparator)
		}
		total += Estimate(d.Content)
	}
	return total
}

// TrimDocuments drops the lowest-ranked documents (from the end of docs)
// until fixed + docs fits within maxTokens. fixed holds the prompt messages
// without the context block. Rank order of the survivors is preserved.
//
// If even a single document does not fit, the empty slice is returned;
// callers should warn separately when that happens.
func TrimDocuments(fixed []*schema.Message, docs []rag.Document, maxTokens int) []rag.Document {
	if len(docs) == 0 {
		return docs
	}

	fixedTokens := EstimateMessages(fixed)
	for len(docs) > 0 {
		if fixedTokens+EstimateDocuments(docs) <= maxTokens {
			break
		}
		docs = docs[:len(docs)-1]
	}
	return docs
}
