package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"corpussync/internal/config"
	"corpussync/internal/source"
)

// zendeskTicketsResponse mirrors the relevant fields of Zendesk's
// cursor-paginated incremental ticket export API.
type zendeskTicketsResponse struct {
	Tickets []struct {
		ID          int64  `json:"id"`
		Status      string `json:"status"`
		Description string `json:"description"`
		Subject     string `json:"subject"`
	} `json:"tickets"`
	AfterCursor string `json:"after_cursor"`
	EndOfStream bool   `json:"end_of_stream"`
}

// zendeskFetcher builds a source.FetchPageFunc against one ticket-stream
// source's configured endpoint and API key.
func zendeskFetcher(sc config.SourceConfig) source.FetchPageFunc {
	return func(ctx context.Context, cursor string) (source.Page, error) {
		url := sc.APIBaseURL + "/api/v2/incremental/tickets/cursor.json"
		if cursor != "" {
			url += "?cursor=" + cursor
		} else {
			url += "?start_time=0"
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return source.Page{}, err
		}
		if sc.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+sc.APIKey)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return source.Page{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return source.Page{}, source.NewRateLimitedError(resp.Header.Get("Retry-After"))
		}
		if resp.StatusCode/100 != 2 {
			return source.Page{}, fmt.Errorf("zendesk: status %s", resp.Status)
		}

		var body zendeskTicketsResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return source.Page{}, fmt.Errorf("zendesk: decode response: %w", err)
		}

		tickets := make([]source.Ticket, len(body.Tickets))
		for i, t := range body.Tickets {
			tickets[i] = source.Ticket{
				ID:      fmt.Sprintf("%d", t.ID),
				Status:  t.Status,
				Content: t.Subject + "\n\n" + t.Description,
			}
		}
		return source.Page{
			Tickets:    tickets,
			NextCursor: body.AfterCursor,
			HasMore:    !body.EndOfStream,
		}, nil
	}
}
