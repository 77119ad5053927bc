package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileNoOpOnEqualHashes(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Open(ctx))

	chunks := []Chunk{
		{ChunkID: "c1", URL: "https://example.com/a", Hash: "h1", Content: "one"},
		{ChunkID: "c2", URL: "https://example.com/a", Hash: "h2", Content: "two"},
	}
	changed, err := Reconcile(ctx, s, "https://example.com/a", chunks)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = Reconcile(ctx, s, "https://example.com/a", chunks)
	require.NoError(t, err)
	require.False(t, changed, "identical hash multiset must be a no-op")
}

func TestReconcileSwapsOnChange(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Open(ctx))

	url := "https://example.com/a"
	_, err := Reconcile(ctx, s, url, []Chunk{{ChunkID: "c1", URL: url, Hash: "h1", Content: "one"}})
	require.NoError(t, err)

	changed, err := Reconcile(ctx, s, url, []Chunk{{ChunkID: "c2", URL: url, Hash: "h2", Content: "two"}})
	require.NoError(t, err)
	require.True(t, changed)

	hashes, err := s.GetHashesByURL(ctx, url)
	require.NoError(t, err)
	require.Equal(t, []string{"h2"}, hashes)
}

func TestRemoveObsoleteURLsSkipsVisited(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Open(ctx))

	require.NoError(t, s.Insert(ctx, Chunk{ChunkID: "c1", URL: "https://example.com/keep", Hash: "h1", Content: "x"}))
	require.NoError(t, s.Insert(ctx, Chunk{ChunkID: "c2", URL: "https://example.com/drop", Hash: "h2", Content: "y"}))

	visited := map[string]struct{}{"https://example.com/keep": {}}
	require.NoError(t, s.RemoveObsoleteURLs(ctx, "https://example.com/", visited))

	urls, err := s.GetURLsByPrefix(ctx, "https://example.com/")
	require.NoError(t, err)
	require.Contains(t, urls, "https://example.com/keep")
	require.NotContains(t, urls, "https://example.com/drop")
}

func TestMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Open(ctx))

	v, err := s.GetMetadata(ctx, ETagKey("https://example.com/a"), "")
	require.NoError(t, err)
	require.Equal(t, "", v)

	require.NoError(t, s.SetMetadata(ctx, ETagKey("https://example.com/a"), `"abc123"`, 0))
	v, err = s.GetMetadata(ctx, ETagKey("https://example.com/a"), "")
	require.NoError(t, err)
	require.Equal(t, `"abc123"`, v)
}

func TestMetadataKeyBuilders(t *testing.T) {
	require.Equal(t, "etag:https://a", ETagKey("https://a"))
	require.Equal(t, "lastmod:https://a", LastmodKey("https://a"))
	require.Equal(t, "sync_complete:https://a", SyncCompleteKey("https://a"))
	require.Equal(t, "last_run_date:org_repo", LastRunDateKey("org/repo"))
	require.Equal(t, "code_sha:org_repo:feature_x", CodeSHAKey("org/repo", "feature-x"))
}
