package source

import (
	"context"

	"corpussync/internal/crawl"
)

// WebsiteConfig is a thin alias over crawl.Config: the website driver
// contract (§4.8) is "delegate to §4.7" verbatim, with nothing else to
// add at this layer.
type WebsiteConfig = crawl.Config

// RunWebsite delegates entirely to the crawl loop.
func RunWebsite(ctx context.Context, cfg WebsiteConfig) (crawl.Result, error) {
	return crawl.Run(ctx, cfg)
}
