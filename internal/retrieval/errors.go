package retrieval

import (
	"fmt"
)

// Mode names a retrieval entry point. The values double as the JSON keys of
// the per-query outcome.
type Mode string

const (
	// ModeStandard answers from the top-k vector search hits.
	ModeStandard Mode = "standard_retrieval"
	// ModeHybrid answers from BM25 and vector hits fused by reciprocal rank.
	ModeHybrid Mode = "hybrid_search"
	// ModeAnalytical answers from hits for model-generated sub-questions.
	ModeAnalytical Mode = "analytical_retrieval"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeStandard, ModeHybrid, ModeAnalytical}

// ParseMode accepts a mode name or its short alias (standard, hybrid, analytical).
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "standard", string(ModeStandard):
		return ModeStandard, true
	case "hybrid", string(ModeHybrid):
		return ModeHybrid, true
	case "analytical", string(ModeAnalytical):
		return ModeAnalytical, true
	}
	return "", false
}

// Stage names the step of an invocation that failed.
type Stage string

const (
	StageValidate     Stage = "validate"
	StageExtract      Stage = "extract"
	StageChunk        Stage = "chunk"
	StageEmbed        Stage = "embed"
	StageIndex        Stage = "index"
	StageSearch       Stage = "search"
	StageSubQuestions Stage = "sub_questions"
	StageRespond      Stage = "respond"
)

// RetrievalError wraps any failure of an orchestrator invocation. The whole
// batch fails with it; no partial results accompany it.
type RetrievalError struct {
	// Mode is the entry point that failed (empty for a bare Build).
	Mode Mode
	// Document is the document reference of the invocation.
	Document string
	// Stage is the step that failed.
	Stage Stage
	// Query is the query being answered, when the failure is query-scoped.
	Query string
	// Err is the underlying cause.
	Err error
}

func (e *RetrievalError) Error() string {
	prefix := "retrieval"
	if e.Mode != "" {
		prefix += " " + string(e.Mode)
	}
	if e.Query != "" {
		return fmt.Sprintf("%s: %s: %s (query %q): %v", prefix, e.Document, e.Stage, e.Query, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", prefix, e.Document, e.Stage, e.Err)
}

// Unwrap returns the underlying cause so errors.Is sees the category sentinel.
func (e *RetrievalError) Unwrap() error { return e.Err }
