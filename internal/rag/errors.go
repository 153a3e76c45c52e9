package rag

import (
	"errors"
	"fmt"
)

// Error categories shared by the retrieval core and its collaborators.
// Collaborators wrap provider failures with the matching sentinel, for
// example fmt.Errorf("%w: ollama: %w", rag.ErrEmbedding, err), so callers can
// classify a failure with errors.Is without losing the underlying cause.
var (
	// ErrInvalidParameter reports malformed input to chunking, search, or
	// fusion, such as an overlap not smaller than the chunk size.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrExtraction reports a document that could not be read or parsed.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding reports an embedding provider failure or inconsistent
	// vectors returned by the provider.
	ErrEmbedding = errors.New("embedding failed")

	// ErrCompletion reports a language-model completion failure.
	ErrCompletion = errors.New("completion failed")

	// ErrFrozen is returned when adding to a Builder that has already been frozen.
	ErrFrozen = errors.New("index is frozen")
)

// WithCategory returns err tagged with sentinel. Errors already carrying
// sentinel are returned unchanged.
func WithCategory(sentinel, err error) error {
	if err == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
