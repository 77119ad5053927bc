// Package browser implements the headless-browser page driver behind
// the crawl loop's process_page contract (§4.7): navigate, extract
// readable content as Markdown, and collect outbound links, tracking
// browser-session health so a degraded session is recreated rather
// than reused.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"corpussync/internal/urlutil"
)

// Page is the result of fetching one url (§4.7 step 3).
type Page struct {
	Content  string // rendered Markdown, or "" if extraction failed
	Links    []string
	FinalURL string
	ETag     string
	Status   int
}

// Driver fetches pages with a headless browser, recreating its session
// whenever a protocol error indicates the prior one is unusable.
type Driver struct {
	mu       sync.Mutex
	allocCtx context.Context
	cancel   context.CancelFunc
	degraded bool
	timeout  time.Duration
	userAgent string
}

// New creates a Driver. Call Close when done crawling.
func New(timeout time.Duration) *Driver {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	d := &Driver{timeout: timeout, userAgent: "corpussync-crawler/1.0", degraded: true}
	return d
}

func (d *Driver) ensureSession() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.degraded && d.allocCtx != nil {
		return d.allocCtx
	}
	if d.cancel != nil {
		d.cancel()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	d.allocCtx = allocCtx
	d.cancel = cancel
	d.degraded = false
	return d.allocCtx
}

// degrade marks the current session for recreation on the next Fetch.
func (d *Driver) degrade() {
	d.mu.Lock()
	d.degraded = true
	d.mu.Unlock()
}

// Close releases the browser session.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// Fetch navigates to rawURL and returns its readable content as
// Markdown plus every link discovered on the page. Protocol errors
// degrade the session for the next call; all other errors are
// returned unchanged for the caller to classify via IsNetworkError.
func (d *Driver) Fetch(ctx context.Context, rawURL string) (Page, error) {
	allocCtx := d.ensureSession()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, d.timeout)
	defer cancelTimeout()

	var rawHTML string
	var finalURL string
	var status int64
	var etag string

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(network.Headers(map[string]interface{}{
				"User-Agent": d.userAgent,
			})).Do(ctx)
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &rawHTML),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if IsProtocolError(err) {
			d.degrade()
		}
		return Page{}, err
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	status = 200

	page := Page{FinalURL: finalURL, Status: int(status), ETag: etag}

	links, err := extractLinks(rawHTML, finalURL)
	if err == nil {
		page.Links = links
	}

	md, err := render(rawHTML, finalURL)
	if err != nil {
		// Readability/markdown failure: content stays empty, per §4.7
		// step 4 ("content is null"); links are still reported.
		return page, nil
	}
	page.Content = md
	return page, nil
}

// render extracts the readable article from rawHTML and converts it
// to Markdown, falling back to converting the full document when
// readability finds nothing.
func render(rawHTML, baseURL string) (string, error) {
	base, _ := url.Parse(baseURL)
	var articleHTML, title string
	if art, rerr := readability.FromReader(strings.NewReader(rawHTML), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}
	if articleHTML == "" {
		articleHTML = rawHTML
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseURL))
	if err != nil {
		return "", fmt.Errorf("html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return md, nil
}

// extractLinks walks the parsed document collecting every <a href>,
// resolved against base and filtered to http(s) targets.
func extractLinks(rawHTML, base string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					resolved := urlutil.Build(attr.Val, base)
					if strings.HasPrefix(resolved, "http://") || strings.HasPrefix(resolved, "https://") {
						links = append(links, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

var networkErrorSubstrings = []string{
	"no such host",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"timeout",
	"network is unreachable",
	"host is unreachable",
	"getaddrinfo",
	"dns",
	"ECONNREFUSED",
	"ENOTFOUND",
	"ETIMEDOUT",
}

// IsNetworkError classifies err per §4.7 step 3's network-error list:
// DNS failures, connection refused/reset, and timeouts.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range networkErrorSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

var protocolErrorSubstrings = []string{
	"protocol error",
	"protocolerror",
	"target closed",
	"session closed",
	"connection closed",
	"network.enable timed out",
	"protocoltimeout",
}

// IsProtocolError classifies err as a browser-session failure that
// requires a fresh session before the next page fetch.
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range protocolErrorSubstrings {
		if strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
