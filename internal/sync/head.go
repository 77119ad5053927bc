package sync

import (
	"context"
	"net/http"

	"corpussync/internal/changedetect"
	"corpussync/internal/observability"
)

// httpClient is shared by every plain HTTP call this package makes
// (HEAD, sitemap fetch, Zendesk pagination), instrumented with the same
// otelhttp transport the embedding client uses.
var httpClient = observability.NewHTTPClient(nil)

// httpHead issues a real HEAD request, the default changedetect.HeadFunc
// for layer 3 of the change-detection cascade (§4.3).
func httpHead(ctx context.Context, url string) (changedetect.HeadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return changedetect.HeadResult{}, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return changedetect.HeadResult{}, err
	}
	defer resp.Body.Close()
	return changedetect.HeadResult{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		RetryAfter: resp.Header.Get("Retry-After"),
	}, nil
}
