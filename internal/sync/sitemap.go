package sync

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"corpussync/internal/crawl"
)

// sitemapURLSet and sitemapIndex mirror the two XML shapes a sitemap
// endpoint can return: a plain urlset, or a sitemapindex whose <sitemap>
// entries point at further urlset documents that must be merged in.
type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapURL  `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	Lastmod string `xml:"lastmod"`
}

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// fetchSitemap fetches sitemapURL and, if it's a sitemapindex, fetches
// and merges every child sitemap recursively (§6). Sitemaps are plain
// XML documents, not rendered pages, so this bypasses the browser
// driver (crawl.Fetcher) and issues a direct HTTP GET.
func fetchSitemap(ctx context.Context, _ crawl.Fetcher, sitemapURL string) ([]crawl.QueueItem, error) {
	body, err := getSitemapBody(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		var merged []crawl.QueueItem
		for _, child := range idx.Sitemaps {
			entries, err := fetchSitemap(ctx, nil, child.Loc)
			if err != nil {
				continue
			}
			merged = append(merged, entries...)
		}
		return merged, nil
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("sync: parse sitemap %s: %w", sitemapURL, err)
	}
	out := make([]crawl.QueueItem, 0, len(set.URLs))
	for _, u := range set.URLs {
		out = append(out, crawl.QueueItem{URL: u.Loc, Lastmod: u.Lastmod})
	}
	return out, nil
}

func getSitemapBody(ctx context.Context, sitemapURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("sync: sitemap %s returned %s", sitemapURL, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
