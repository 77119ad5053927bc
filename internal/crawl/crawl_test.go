package crawl

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{m: make(map[string]string)} }

func (f *fakeKV) Get(ctx context.Context, url string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[url]
	return v, ok, nil
}

func (f *fakeKV) Set(ctx context.Context, url, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[url] = value
	return nil
}

type fakeFetcher struct {
	pages map[string]Page
	errs  map[string]error
	calls map[string]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	f.calls[url]++
	if err, ok := f.errs[url]; ok {
		return Page{}, err
	}
	return f.pages[url], nil
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]Page{}, errs: map[string]error{}, calls: map[string]int{}}
}

func TestBasicCrawlVisitsLinkedPages(t *testing.T) {
	f := newFetcher()
	f.pages["https://example.com/"] = Page{Content: "home", FinalURL: "https://example.com/", Links: []string{"https://example.com/a"}}
	f.pages["https://example.com/a"] = Page{Content: "a", FinalURL: "https://example.com/a"}

	var processed []string
	res, err := Run(context.Background(), Config{
		BaseURL: "https://example.com/",
		Fetcher: f,
		Process: func(ctx context.Context, url, content string) error {
			processed = append(processed, url)
			return nil
		},
	})
	require.NoError(t, err)
	require.False(t, res.HasNetworkErrors)
	require.ElementsMatch(t, []string{"https://example.com/", "https://example.com/a"}, processed)
}

func TestLinksOutsidePrefixAreDropped(t *testing.T) {
	f := newFetcher()
	f.pages["https://example.com/docs/"] = Page{Content: "home", FinalURL: "https://example.com/docs/", Links: []string{"https://other.com/x"}}

	var processed []string
	_, err := Run(context.Background(), Config{
		BaseURL: "https://example.com/docs/",
		Fetcher: f,
		Process: func(ctx context.Context, url, content string) error {
			processed = append(processed, url)
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com/docs/"}, processed)
}

func TestEmptyContentSkipsETagWrite(t *testing.T) {
	f := newFetcher()
	f.pages["https://example.com/"] = Page{Content: "", FinalURL: "https://example.com/", ETag: `"v1"`}

	etags := newFakeKV()
	_, err := Run(context.Background(), Config{
		BaseURL:   "https://example.com/",
		Fetcher:   f,
		EtagStore: etags,
		Process: func(ctx context.Context, url, content string) error {
			t.Fatal("process must not be called for empty content")
			return nil
		},
	})
	require.NoError(t, err)
	_, ok, _ := etags.Get(context.Background(), "https://example.com/")
	require.False(t, ok)
}

func TestProcessFailureSkipsVisitedAndStores(t *testing.T) {
	f := newFetcher()
	f.pages["https://example.com/"] = Page{Content: "home", FinalURL: "https://example.com/", ETag: `"v1"`}

	etags := newFakeKV()
	visited := make(map[string]struct{})
	_, err := Run(context.Background(), Config{
		BaseURL:   "https://example.com/",
		Fetcher:   f,
		EtagStore: etags,
		Visited:   visited,
		Process: func(ctx context.Context, url, content string) error {
			return assertErr
		},
	})
	require.NoError(t, err)
	_, seen := visited["https://example.com/"]
	require.False(t, seen)
	_, ok, _ := etags.Get(context.Background(), "https://example.com/")
	require.False(t, ok)
}

var assertErr = errNoop{}

type errNoop struct{}

func (errNoop) Error() string { return "process failed" }

func TestNetworkErrorSetsFlagAndContinues(t *testing.T) {
	f := newFetcher()
	f.errs["https://example.com/"] = errNoop{}

	res, err := Run(context.Background(), Config{
		BaseURL: "https://example.com/",
		Fetcher: f,
		Classifier: classifierFunc{
			network: func(error) bool { return true },
		},
		Process: func(ctx context.Context, url, content string) error { return nil },
	})
	require.NoError(t, err)
	require.True(t, res.HasNetworkErrors)
}

type classifierFunc struct {
	network  func(error) bool
	protocol func(error) bool
}

func (c classifierFunc) IsNetworkError(err error) bool {
	if c.network == nil {
		return false
	}
	return c.network(err)
}

func (c classifierFunc) IsProtocolError(err error) bool {
	if c.protocol == nil {
		return false
	}
	return c.protocol(err)
}

func TestRateLimitedRetriesThenSucceeds(t *testing.T) {
	f := newFetcher()
	attempts := 0
	wrapped := &retryingFetcher{inner: f, url: "https://example.com/", failTimes: 1}
	f.pages["https://example.com/"] = Page{Content: "ok", FinalURL: "https://example.com/"}

	_, err := Run(context.Background(), Config{
		BaseURL: "https://example.com/",
		Fetcher: wrapped,
		Process: func(ctx context.Context, url, content string) error {
			attempts++
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

type retryingFetcher struct {
	inner     *fakeFetcher
	url       string
	failTimes int
	calls     int
}

func (r *retryingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	if url == r.url && r.calls < r.failTimes {
		r.calls++
		return Page{}, NewRateLimitedError("0")
	}
	return r.inner.Fetch(ctx, url)
}

func TestMirrorNotFoundIsRecorded(t *testing.T) {
	f := newFetcher()
	f.errs["https://example.com/p2"] = NewNotFoundError()
	f.pages["https://example.com/"] = Page{Content: "home", FinalURL: "https://example.com/", Links: []string{"https://example.com/p2"}}

	res, err := Run(context.Background(), Config{
		BaseURL:        "https://example.com/",
		Fetcher:        f,
		MarkdownMirror: alwaysInMirror{},
		Process:        func(ctx context.Context, url, content string) error { return nil },
	})
	require.NoError(t, err)
	_, found := res.NotFoundURLs["https://example.com/p2"]
	require.True(t, found)
}

type alwaysInMirror struct{}

func (alwaysInMirror) Contains(ctx context.Context, url string) (bool, error) { return true, nil }
