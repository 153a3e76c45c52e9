package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"fixed", Fixed, false},
		{"Semantic", Semantic, false},
		{" structure_based ", StructureBased, false},
		{"structure", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := ParseStrategy(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, rag.ErrInvalidParameter, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestNew_ValidatesParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		strategy Strategy
		params   Params
		wantErr  bool
	}{
		{"fixed defaults", Fixed, DefaultParams(), false},
		{"fixed overlap equals size", Fixed, Params{Size: 10, Overlap: 10}, true},
		{"fixed overlap exceeds size", Fixed, Params{Size: 10, Overlap: 11}, true},
		{"fixed zero size", Fixed, Params{Size: 0}, true},
		{"fixed negative overlap", Fixed, Params{Size: 10, Overlap: -1}, true},
		{"semantic defaults", Semantic, DefaultParams(), false},
		{"semantic threshold too high", Semantic, Params{Threshold: 1.5}, true},
		{"structure ignores params", StructureBased, Params{}, false},
		{"unknown strategy", Strategy("paragraphs"), DefaultParams(), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.strategy, tc.params)
			if tc.wantErr {
				assert.ErrorIs(t, err, rag.ErrInvalidParameter)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFixedSize_CountLengthAndOverlap(t *testing.T) {
	t.Parallel()

	cases := []struct{ length, size, overlap int }{
		{10, 4, 2},
		{10, 4, 0},
		{10, 4, 3},
		{1000, 100, 20},
		{7, 10, 5},
		{2500, 1000, 200},
	}
	for _, tc := range cases {
		text := strings.Repeat("abcdefghij", tc.length/10+1)[:tc.length]
		chunks, err := FixedSize(text, tc.size, tc.overlap)
		require.NoError(t, err)

		stride := tc.size - tc.overlap
		wantCount := (tc.length + stride - 1) / stride
		require.Len(t, chunks, wantCount, "L=%d n=%d o=%d", tc.length, tc.size, tc.overlap)

		for i, c := range chunks {
			if len(c) < tc.size {
				// Only trailing windows may be short.
				for _, rest := range chunks[i:] {
					assert.Less(t, len(rest), tc.size)
				}
				break
			}
		}
		for i := 0; i+1 < len(chunks); i++ {
			if len(chunks[i]) != tc.size {
				continue
			}
			ov := min(tc.overlap, len(chunks[i+1]))
			assert.Equal(t, chunks[i][tc.size-ov:], chunks[i+1][:ov])
		}
	}
}

func TestFixedSize_MultiByteRunes(t *testing.T) {
	t.Parallel()

	chunks, err := FixedSize("héllo wörld", 5, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"héllo", "o wör", "rld"}, chunks)
}

func TestFixedSize_EmptyText(t *testing.T) {
	t.Parallel()

	chunks, err := FixedSize("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSentences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Hi!", "How are you?", "Fine."}, Sentences("Hi! How are you?\n\nFine."))
	assert.Equal(t, []string{"Version 1.5 shipped."}, Sentences("Version 1.5 shipped."))
	assert.Equal(t, []string{"Trailing space."}, Sentences("  Trailing space.   "))
	assert.Empty(t, Sentences("   "))
}

func TestSemanticGroups(t *testing.T) {
	t.Parallel()

	t.Run("single sentence", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"Only one sentence here."}, SemanticGroups("Only one sentence here.", DefaultThreshold))
	})

	t.Run("disjoint vocabularies split", func(t *testing.T) {
		t.Parallel()
		got := SemanticGroups("Cats purr softly. Rockets launch quickly.", DefaultThreshold)
		assert.Equal(t, []string{"Cats purr softly.", "Rockets launch quickly."}, got)
	})

	t.Run("similar sentences merge", func(t *testing.T) {
		t.Parallel()
		got := SemanticGroups("The cat sat. The cat sat down. Stocks fell sharply.", DefaultThreshold)
		assert.Equal(t, []string{"The cat sat. The cat sat down.", "Stocks fell sharply."}, got)
	})

	t.Run("zero threshold keeps everything together", func(t *testing.T) {
		t.Parallel()
		got := SemanticGroups("Alpha beta. Gamma delta. Epsilon.", 0)
		assert.Len(t, got, 1)
	})

	t.Run("blank text", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, SemanticGroups(" \n\t", DefaultThreshold))
	})
}

func TestStructureSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "two headed sections",
			in:   "# H1\npara1\n\n# H2\npara2",
			want: []string{"# H1\npara1", "# H2\npara2"},
		},
		{
			name: "heading keeps first paragraph across blank line",
			in:   "# Title\n\nBody text\n\nMore",
			want: []string{"# Title\nBody text", "More"},
		},
		{
			name: "consecutive headings",
			in:   "# A\n## B\ntext",
			want: []string{"# A", "## B\ntext"},
		},
		{
			name: "no headings",
			in:   "line one\nline two\n\nline three\r\n",
			want: []string{"line one\nline two", "line three"},
		},
		{
			name: "hash without space is text",
			in:   "#hashtag\nstill text",
			want: []string{"#hashtag\nstill text"},
		},
		{
			name: "blank input",
			in:   "\n\n  \n",
			want: nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, StructureSections(tc.in))
		})
	}
}

func TestFragments_AssignsSequence(t *testing.T) {
	t.Parallel()

	c, err := New(StructureBased, Params{})
	require.NoError(t, err)

	frags, err := Fragments(c, "# A\nx\n\n# B\ny", "report.md")
	require.NoError(t, err)
	require.Len(t, frags, 2)
	for i, f := range frags {
		assert.Equal(t, i, f.SequenceIndex)
		assert.Equal(t, "report.md", f.SourceID)
	}
}
