package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"corpussync/internal/config"
	"corpussync/internal/crawl"
	"corpussync/internal/embedding"
	"corpussync/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type fakeFetcher struct {
	pages map[string]crawl.Page
}

func (f fakeFetcher) Fetch(ctx context.Context, url string) (crawl.Page, error) {
	p, ok := f.pages[url]
	if !ok {
		return crawl.Page{}, nil
	}
	return p, nil
}

func TestRunWebsiteChunksAndStoresPages(t *testing.T) {
	s := store.NewMemory()
	fetcher := fakeFetcher{pages: map[string]crawl.Page{
		"https://example.com/docs": {Content: "# Home\n\nwelcome", Links: nil, FinalURL: "https://example.com/docs"},
	}}
	e := &Engine{Store: s, Embedder: embedding.NewDeterministic(8), Fetcher: fetcher}

	cfg := config.Config{Sources: []config.SourceConfig{{
		Type: config.SourceWebsite, Name: "docs", ProductName: "docs", Version: "v1",
		BaseURL: "https://example.com/docs",
	}}}
	err := e.Run(context.Background(), cfg)
	require.NoError(t, err)

	hashes, err := s.GetHashesByURL(context.Background(), "https://example.com/docs")
	require.NoError(t, err)
	require.NotEmpty(t, hashes)
}

func TestRunLocalDirectoryChunksFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# Title\n\nbody text here")

	s := store.NewMemory()
	e := &Engine{Store: s, Embedder: embedding.NewDeterministic(8)}
	cfg := config.Config{Sources: []config.SourceConfig{{
		Type: config.SourceLocalDirectory, Name: "local", ProductName: "docs", Version: "v1",
		Path: dir, Recursive: true,
	}}}
	err := e.Run(context.Background(), cfg)
	require.NoError(t, err)

	urls, err := s.GetURLsByPrefix(context.Background(), "file://")
	require.NoError(t, err)
	require.Len(t, urls, 1)
}

func TestRunZendeskUnreachableEndpointDoesNotFailRun(t *testing.T) {
	s := store.NewMemory()
	e := &Engine{Store: s, Embedder: embedding.NewDeterministic(8)}

	called := false
	_ = called
	cfg := config.Config{Sources: []config.SourceConfig{{
		Type: config.SourceZendesk, Name: "tickets", ProductName: "support", Version: "v1",
		APIBaseURL: "https://example.zendesk.com",
	}}}

	// runZendesk depends on an HTTP endpoint; verify it fails gracefully
	// (network unreachable in test) rather than panicking.
	err := e.Run(context.Background(), cfg)
	require.NoError(t, err) // Engine.Run logs per-source errors, never returns them
}
