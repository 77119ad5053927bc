package changedetect

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestForceFullSyncOverridesLaterLayers(t *testing.T) {
	d, err := Evaluate(context.Background(), nil, nil, Input{
		URL:            "https://example.com/a",
		ForceFullSync:  true,
		SitemapLastmod: "2024-01-01",
		StoredLastmod:  "2024-01-01",
	})
	require.NoError(t, err)
	require.False(t, d.Skip)
	require.True(t, d.Forced)
}

func TestSitemapLastmodEqualSkips(t *testing.T) {
	d, err := Evaluate(context.Background(), nil, nil, Input{
		SitemapLastmod: "2024-01-01",
		StoredLastmod:  "2024-01-01",
	})
	require.NoError(t, err)
	require.True(t, d.Skip)
}

func TestSitemapLastmodDifferentProceedsWithoutHead(t *testing.T) {
	headCalled := false
	head := func(context.Context, string) (HeadResult, error) {
		headCalled = true
		return HeadResult{StatusCode: 200}, nil
	}
	d, err := Evaluate(context.Background(), nil, head, Input{
		SitemapLastmod: "2024-02-01",
		StoredLastmod:  "2024-01-01",
	})
	require.NoError(t, err)
	require.False(t, d.Skip)
	require.False(t, headCalled, "layer 3 must not be consulted once lastmod resolves")
}

func TestETagMatchSkips(t *testing.T) {
	head := func(context.Context, string) (HeadResult, error) {
		return HeadResult{StatusCode: 200, ETag: `"v1"`}, nil
	}
	d, err := Evaluate(context.Background(), NewBackoff(), head, Input{
		StoredETag:    `"v1"`,
		TrustHeadETag: true,
	})
	require.NoError(t, err)
	require.True(t, d.Skip)
}

func TestETagMismatchProceeds(t *testing.T) {
	head := func(context.Context, string) (HeadResult, error) {
		return HeadResult{StatusCode: 200, ETag: `"v2"`}, nil
	}
	d, err := Evaluate(context.Background(), NewBackoff(), head, Input{
		StoredETag:    `"v1"`,
		TrustHeadETag: true,
	})
	require.NoError(t, err)
	require.False(t, d.Skip)
}

func TestHeadNonRetryableFailureFallsThrough(t *testing.T) {
	head := func(context.Context, string) (HeadResult, error) {
		return HeadResult{StatusCode: 500}, nil
	}
	d, err := Evaluate(context.Background(), NewBackoff(), head, Input{StoredETag: `"v1"`})
	require.NoError(t, err)
	require.False(t, d.Skip)
}

func TestHead429RetriesOnceThenFallsThrough(t *testing.T) {
	calls := 0
	head := func(context.Context, string) (HeadResult, error) {
		calls++
		return HeadResult{StatusCode: 429, RetryAfter: "0"}, nil
	}
	start := time.Now()
	d, err := Evaluate(context.Background(), NewBackoff(), head, Input{StoredETag: `"v1"`})
	require.NoError(t, err)
	require.False(t, d.Skip)
	require.Equal(t, 2, calls)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestAdaptiveBackoffRampAndDecay(t *testing.T) {
	bo := NewBackoff()
	require.Equal(t, time.Duration(0), bo.Delay())
	bo.OnRateLimited()
	require.Equal(t, 200*time.Millisecond, bo.Delay())
	bo.OnRateLimited()
	require.Equal(t, 400*time.Millisecond, bo.Delay())
	for i := 0; i < 10; i++ {
		bo.OnRateLimited()
	}
	require.Equal(t, 5*time.Second, bo.Delay())
	bo.OnSuccess()
	require.Equal(t, 2500*time.Millisecond, bo.Delay())
}

func TestParseRetryAfterNumeric(t *testing.T) {
	now := time.Now()
	require.Equal(t, 5*time.Second, ParseRetryAfter("5", now))
}

func TestParseRetryAfterClampsToMinimum(t *testing.T) {
	now := time.Now()
	require.Equal(t, time.Second, ParseRetryAfter("0", now))
	require.Equal(t, time.Second, ParseRetryAfter("", now))
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Now()
	future := now.Add(10 * time.Second).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future, now)
	require.GreaterOrEqual(t, d, 9*time.Second)
}
