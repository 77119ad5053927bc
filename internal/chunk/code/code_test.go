package code

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func cfg() Config {
	return Config{ProductName: "docs", Version: "v1", URL: "https://example.com/a.go", FilePath: "pkg/a.go", Language: "go", Budget: 64}
}

func TestGoFunctionFitsAsSingleChunk(t *testing.T) {
	src := "package pkg\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"
	chunks := Chunk(context.Background(), src, cfg())
	require.Len(t, chunks, 1)
	for _, c := range chunks {
		require.True(t, strings.HasPrefix(c.Content, "[File: pkg/a.go]\n\n"))
	}
}

func TestUnsupportedLanguageFallsBackToTokenChunker(t *testing.T) {
	c := cfg()
	c.Language = "brainfuck"
	src := strings.Repeat("word ", 300)
	chunks := Chunk(context.Background(), src, c)
	require.Greater(t, len(chunks), 1)
}

func TestEmptySourceProducesNoChunks(t *testing.T) {
	require.Empty(t, Chunk(context.Background(), "", cfg()))
}

func TestLanguageHyphenNormalization(t *testing.T) {
	require.Equal(t, "c_sharp", normalizeLanguage("c-sharp"))
}

func TestChunkIndexAndTotalAreContiguous(t *testing.T) {
	src := strings.Repeat("word ", 500)
	c := cfg()
	c.Language = "unsupported"
	chunks := Chunk(context.Background(), src, c)
	for i, ch := range chunks {
		require.Equal(t, i, ch.ChunkIndex)
		require.Equal(t, len(chunks), ch.TotalChunks)
	}
}

func TestBranchAndRepoRecordedNotInPrefix(t *testing.T) {
	c := cfg()
	c.Branch = "main"
	c.Repo = "org/repo"
	src := "package pkg\n\nfunc F() {}\n"
	chunks := Chunk(context.Background(), src, c)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.Equal(t, "main", ch.Branch)
		require.Equal(t, "org/repo", ch.Repo)
		require.NotContains(t, ch.Content, "main")
		require.NotContains(t, ch.Content, "org/repo")
	}
}

func TestMarkdownFileDelegatesToMarkdownChunker(t *testing.T) {
	c := cfg()
	c.FilePath = "docs/readme.md"
	c.Language = ""
	src := "# Title\nsome body text long enough to stand on its own without merging"
	chunks := Chunk(context.Background(), src, c)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].Content, "[Topic: docs/readme.md > Title]")
}

func TestMergeCandidatesSkipsEmptyAndRespectsBudget(t *testing.T) {
	out := mergeCandidates([]string{"a", "", "b"}, 1000)
	require.Equal(t, []string{"a\nb"}, out)
}
