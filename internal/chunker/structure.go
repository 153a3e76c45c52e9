package chunker

import (
	"regexp"
	"strings"
)

// headingPattern matches a markdown ATX heading line such as "## Results".
var headingPattern = regexp.MustCompile(`^#+\s+`)

type structureChunker struct{}

func (structureChunker) Chunk(text string) ([]string, error) {
	return StructureSections(text), nil
}

// StructureSections splits text line by line. A heading line closes the
// current chunk and opens a new one; other non-blank lines accumulate; a
// blank line closes the current chunk unless it holds only its heading, so
// a heading stays attached to the paragraph that follows it. Chunks are
// trimmed and empty ones are dropped.
func StructureSections(text string) []string {
	var (
		chunks      []string
		current     strings.Builder
		headingOnly bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		headingOnly = false
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case headingPattern.MatchString(line):
			flush()
			current.WriteString(line)
			current.WriteByte('\n')
			headingOnly = true
		case strings.TrimSpace(line) == "":
			if !headingOnly {
				flush()
			}
		default:
			current.WriteString(line)
			current.WriteByte('\n')
			headingOnly = false
		}
	}
	flush()
	return chunks
}
