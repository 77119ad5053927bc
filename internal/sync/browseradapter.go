package sync

import (
	"context"

	"corpussync/internal/browser"
	"corpussync/internal/crawl"
)

// browserFetcher adapts *browser.Driver to crawl.Fetcher/ErrorClassifier:
// the two packages use distinct Page types by design (crawl never
// imports browser), so this is the seam that bridges them.
type browserFetcher struct {
	driver *browser.Driver
}

// NewBrowserFetcher wraps a browser driver for use as a crawl.Fetcher.
func NewBrowserFetcher(driver *browser.Driver) interface {
	crawl.Fetcher
	crawl.ErrorClassifier
} {
	return browserFetcher{driver: driver}
}

func (b browserFetcher) Fetch(ctx context.Context, url string) (crawl.Page, error) {
	p, err := b.driver.Fetch(ctx, url)
	if err != nil {
		return crawl.Page{}, err
	}
	return crawl.Page{Content: p.Content, Links: p.Links, FinalURL: p.FinalURL, ETag: p.ETag, Status: p.Status}, nil
}

func (b browserFetcher) IsNetworkError(err error) bool  { return browser.IsNetworkError(err) }
func (b browserFetcher) IsProtocolError(err error) bool { return browser.IsProtocolError(err) }
