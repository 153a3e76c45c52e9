package chunker

import (
	"strings"
	"unicode"

	"github.com/54b3r/docqa-go/internal/rag"
)

type semanticChunker struct {
	threshold float64
}

func (c semanticChunker) Chunk(text string) ([]string, error) {
	return SemanticGroups(text, c.threshold), nil
}

// SemanticGroups walks the sentences of text, appending each to the current
// chunk while the cosine similarity between the chunk's term counts and the
// sentence's term counts is at least threshold. Otherwise the chunk is closed
// and the sentence starts a new one. Blank input yields no chunks.
func SemanticGroups(text string, threshold float64) []string {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	current := sentences[0]
	counts := rag.TermCounts(current)

	for _, s := range sentences[1:] {
		sc := rag.TermCounts(s)
		if rag.CosineCounts(counts, sc) >= threshold {
			current += " " + s
			// Joining with a space cannot merge tokens, so adding the
			// sentence counts equals re-counting the whole chunk.
			for term, n := range sc {
				counts[term] += n
			}
			continue
		}
		chunks = append(chunks, current)
		current, counts = s, sc
	}
	return append(chunks, current)
}

// Sentences splits text after every '.', '!' or '?' that is followed by
// whitespace. The whitespace run is dropped; blank sentences are skipped.
func Sentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = appendSentence(out, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = appendSentence(out, string(runes[start:]))
	}
	return out
}

func appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}
