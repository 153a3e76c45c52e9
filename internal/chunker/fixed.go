package chunker

import (
	"fmt"

	"github.com/54b3r/docqa-go/internal/rag"
)

type fixedChunker struct {
	size    int
	overlap int
}

func validateFixed(size, overlap int) error {
	switch {
	case size <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrInvalidParameter, size)
	case overlap < 0:
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", rag.ErrInvalidParameter, overlap)
	case overlap >= size:
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", rag.ErrInvalidParameter, overlap, size)
	}
	return nil
}

// Chunk emits one window per stride start, so text of L runes yields
// ceil(L / (size-overlap)) chunks and the trailing ones may be short.
func (c fixedChunker) Chunk(text string) ([]string, error) {
	return FixedSize(text, c.size, c.overlap)
}

// FixedSize splits text into windows of size runes advancing by
// size-overlap runes. Windows are measured in runes so multi-byte characters
// are never cut.
func FixedSize(text string, size, overlap int) ([]string, error) {
	if err := validateFixed(size, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	stride := size - overlap

	chunks := make([]string, 0, (len(runes)+stride-1)/stride)
	for start := 0; start < len(runes); start += stride {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
