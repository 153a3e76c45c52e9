// Package query holds the model-assisted query helpers: classification into
// the four retrieval categories and decomposition of analytical questions
// into sub-questions.
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/responder"
)

// Category is the retrieval category of a query.
type Category string

const (
	Factual    Category = "Factual"
	Analytical Category = "Analytical"
	Opinion    Category = "Opinion"
	Contextual Category = "Contextual"
	// Unclassified is returned when the model output names no known category.
	Unclassified Category = "Unclassified"
)

// Categories lists the categories a model may return, in match priority.
var Categories = []Category{Factual, Analytical, Opinion, Contextual}

// DefaultSubQuestions is the number of sub-questions requested for analytical retrieval.
const DefaultSubQuestions = 3

// Sampling temperatures for the model calls made by this package. Callers
// bind them with responder.Responder.WithTemperature.
const (
	ClassifyTemperature    float32 = 0
	SubQuestionTemperature float32 = 0.3
)

const classifySystemPrompt = `You are an expert at classifying questions.
Classify the given query into exactly one of these categories:
- Factual: Queries seeking specific, verifiable information.
- Analytical: Queries requiring comprehensive analysis or explanation.
- Opinion: Queries about subjective matters or seeking diverse viewpoints.
- Contextual: Queries that depend on user-specific context.

Return ONLY the category name, without any explanation or additional text.`

const subQuestionsSystemPrompt = `You are an expert at breaking down complex questions.
Generate sub-questions that explore different aspects of the main analytical query.
These sub-questions should cover the breadth of the topic and help retrieve
comprehensive information.

Return a list of exactly %d sub-questions, one per line.`

// Classification is the outcome of Classify. Raw holds the model output.
type Classification struct {
	Category Category `json:"category"`
	Raw      string   `json:"raw"`
}

// Classify asks the completer to categorise q. Output that names none of
// the known categories yields Unclassified rather than an error.
func Classify(ctx context.Context, c responder.Completer, q string) (Classification, error) {
	if strings.TrimSpace(q) == "" {
		return Classification{}, fmt.Errorf("%w: query: empty query", rag.ErrInvalidParameter)
	}
	raw, err := c.Complete(ctx, classifySystemPrompt, "Classify this query: "+q)
	if err != nil {
		return Classification{}, fmt.Errorf("query: classify: %w", err)
	}
	return Classification{Category: ParseCategory(raw), Raw: raw}, nil
}

// ParseCategory returns the first known category named in s, or Unclassified.
func ParseCategory(s string) Category {
	for _, cat := range Categories {
		if strings.Contains(s, string(cat)) {
			return cat
		}
	}
	return Unclassified
}

// listMarker matches leading enumeration such as "1.", "2)", "-" or "*".
var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)

// SubQuestions asks the completer to split q into n sub-questions and
// returns the non-empty lines of its reply, list markers removed, capped at n.
func SubQuestions(ctx context.Context, c responder.Completer, q string, n int) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: query: sub-question count must be > 0, got %d", rag.ErrInvalidParameter, n)
	}
	raw, err := c.Complete(ctx, fmt.Sprintf(subQuestionsSystemPrompt, n), "Generate sub-questions for this analytical query: "+q)
	if err != nil {
		return nil, fmt.Errorf("query: sub-questions: %w", err)
	}
	return ParseLines(raw, n), nil
}

// ParseLines splits s into trimmed non-empty lines without list markers,
// keeping at most n.
func ParseLines(s string, n int) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
