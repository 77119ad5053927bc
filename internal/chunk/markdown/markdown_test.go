package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func cfg() Config {
	return Config{ProductName: "docs", Version: "v1", URL: "https://example.com/a", MaxTokens: 40, MergeThreshold: 10}
}

func TestNoHeadingsUsesIntroduction(t *testing.T) {
	chunks := Chunk("just some plain text with no headings at all", cfg())
	require.Len(t, chunks, 1)
	require.Equal(t, "Introduction", chunks[0].Section)
}

func TestContiguousChunkIndexAndTotal(t *testing.T) {
	doc := "# H1\nbody one\n\n## H2\nbody two that is long enough to not be merged away quickly at all\n"
	chunks := Chunk(doc, cfg())
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		require.Equal(t, len(chunks), c.TotalChunks)
	}
}

func TestSiblingH3sMergeUnderCommonH2(t *testing.T) {
	doc := "# Top\n\n## Parent\n\n### A\nshort\n\n### B\nshort\n"
	chunks := Chunk(doc, cfg())
	require.Len(t, chunks, 1)
	require.Equal(t, []string{"Top", "Parent"}, chunks[0].HeadingHierarchy)
	require.Contains(t, chunks[0].Content, "short")
}

func TestOversizedSectionSplitsWithOverlap(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "word")
	}
	doc := "# Big\n" + strings.Join(words, " ")
	chunks := Chunk(doc, cfg())
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.Equal(t, []string{"Big"}, c.HeadingHierarchy)
	}
}

func TestHeadingStackTruncatesOnShallowerLevel(t *testing.T) {
	doc := "# A\n\n## B\n\n### C\nleaf content here is long enough to stand alone on its own merits\n\n## D\nanother section also long enough to stand on its own without merging away quietly\n"
	chunks := Chunk(doc, cfg())
	var hierarchies [][]string
	for _, c := range chunks {
		hierarchies = append(hierarchies, c.HeadingHierarchy)
	}
	require.Contains(t, hierarchies, []string{"A", "D"})
}

func TestBreadcrumbPrefixPresent(t *testing.T) {
	doc := "# Guide\nsome body text that is reasonably long so it is not merged away into a buffer\n"
	chunks := Chunk(doc, cfg())
	require.Len(t, chunks, 1)
	require.True(t, strings.HasPrefix(chunks[0].Content, "[Topic: Guide]\n\n"))
}

func TestStrippedTrailingAnchorSyntax(t *testing.T) {
	doc := "# Heading Name[](#heading-name)\nbody text long enough to avoid the merge buffer entirely here\n"
	chunks := Chunk(doc, cfg())
	require.Equal(t, "Heading Name", chunks[0].HeadingHierarchy[0])
}

func TestChunkIDIsHashToUUIDOfContent(t *testing.T) {
	chunks := Chunk("# H\nbody text long enough to avoid merge buffer threshold here today", cfg())
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].ChunkID, 36)
	require.Len(t, chunks[0].Hash, 64)
}

func TestEmptyDocumentProducesNoChunks(t *testing.T) {
	require.Empty(t, Chunk("", cfg()))
	require.Empty(t, Chunk("   \n\n  ", cfg()))
}
