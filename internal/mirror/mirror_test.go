package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"corpussync/internal/objectstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	m := New(objectstore.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "https://example.com/a?x=1#frag", "# Hello"))

	content, ok, err := m.Get(ctx, "https://example.com/a?x=1#frag")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "# Hello", content)
}

func TestGetMissingReturnsNotOK(t *testing.T) {
	m := New(objectstore.NewMemoryStore())
	_, ok, err := m.Get(context.Background(), "https://example.com/missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestURLsRoundTripsOriginalStrings(t *testing.T) {
	m := New(objectstore.NewMemoryStore())
	ctx := context.Background()
	urls := []string{"https://example.com/home", "https://example.com/p1", "https://example.com/p2"}
	for _, u := range urls {
		require.NoError(t, m.Put(ctx, u, "body"))
	}

	got, err := m.URLs(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, u := range urls {
		_, present := got[u]
		require.True(t, present, u)
	}
}

func TestDeleteRemovesFromURLSet(t *testing.T) {
	m := New(objectstore.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "https://example.com/p2", "body"))
	require.NoError(t, m.Delete(ctx, "https://example.com/p2"))

	ok, err := m.Contains(ctx, "https://example.com/p2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMirrorCleanupScenario(t *testing.T) {
	// §8 scenario 6: home, p1, p2, p3 in mirror; p2 404s on HEAD during
	// sync, so the caller deletes it; the rest are untouched.
	m := New(objectstore.NewMemoryStore())
	ctx := context.Background()
	for _, u := range []string{"home", "p1", "p2", "p3"} {
		require.NoError(t, m.Put(ctx, u, "body"))
	}

	notFound := map[string]struct{}{"p2": {}}
	for u := range notFound {
		require.NoError(t, m.Delete(ctx, u))
	}

	got, err := m.URLs(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	_, stillThere := got["p2"]
	require.False(t, stillThere)
}
