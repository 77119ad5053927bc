package source

import (
	"context"
	"fmt"
	"time"

	"corpussync/internal/changedetect"
)

const maxAttemptsPerRequest = 3

// Ticket is one record from a ticket-stream source (e.g. Zendesk).
type Ticket struct {
	ID      string
	Status  string // "deleted" triggers chunk removal instead of upsert
	Content string
}

// Page is one page of a cursor-paginated ticket listing.
type Page struct {
	Tickets    []Ticket
	NextCursor string
	HasMore    bool
}

// FetchPageFunc retrieves one page starting at cursor ("" for the
// first page). A rate-limited page is reported via
// NewRateLimitedError so the driver can retry without consuming one
// of the 3 per-request attempts.
type FetchPageFunc func(ctx context.Context, cursor string) (Page, error)

// CursorStore persists the pagination cursor so a crash resumes
// mid-stream instead of restarting.
type CursorStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Config configures one ticket-stream run.
type Config struct {
	Fetch       FetchPageFunc
	CursorKey   string // e.g. "zendesk_cursor:<normalized>"
	CursorStore CursorStore

	// ProcessTicket upserts one non-deleted ticket's chunks.
	ProcessTicket func(ctx context.Context, t Ticket) error
	// DeleteTicket removes a deleted ticket's chunks.
	DeleteTicket func(ctx context.Context, t Ticket) error
}

// Run pages through the ticket stream to completion. The cursor is
// persisted after every page so a later run resumes rather than
// restarting; the caller's watermark should only be advanced by the
// caller once Run returns nil, per §4.8's full-success rule.
func Run(ctx context.Context, cfg Config) error {
	cursor := ""
	if cfg.CursorStore != nil {
		if stored, ok, err := cfg.CursorStore.Get(ctx, cfg.CursorKey); err == nil && ok {
			cursor = stored
		}
	}

	for {
		page, err := fetchWithRetry(ctx, cfg.Fetch, cursor)
		if err != nil {
			return fmt.Errorf("source: ticket stream fetch: %w", err)
		}

		for _, t := range page.Tickets {
			if t.Status == "deleted" {
				if cfg.DeleteTicket != nil {
					if err := cfg.DeleteTicket(ctx, t); err != nil {
						return fmt.Errorf("source: delete ticket %q: %w", t.ID, err)
					}
				}
				continue
			}
			if cfg.ProcessTicket != nil {
				if err := cfg.ProcessTicket(ctx, t); err != nil {
					return fmt.Errorf("source: process ticket %q: %w", t.ID, err)
				}
			}
		}

		cursor = page.NextCursor
		if cfg.CursorStore != nil && cursor != "" {
			if err := cfg.CursorStore.Set(ctx, cfg.CursorKey, cursor); err != nil {
				return fmt.Errorf("source: persist cursor: %w", err)
			}
		}

		if !page.HasMore {
			return nil
		}
	}
}

// rateLimitedError lets Fetch report a 429 with its Retry-After value
// without the driver importing net/http.
type rateLimitedError struct{ retryAfter string }

func (e *rateLimitedError) Error() string { return "429: rate limited" }

// NewRateLimitedError lets a FetchPageFunc report a 429.
func NewRateLimitedError(retryAfter string) error {
	return &rateLimitedError{retryAfter: retryAfter}
}

// fetchWithRetry retries 429s indefinitely (each wait gated by the
// parsed Retry-After) without spending one of the 3 attempts allotted
// to genuine failures.
func fetchWithRetry(ctx context.Context, fetch FetchPageFunc, cursor string) (Page, error) {
	attempts := 0
	var lastErr error
	for attempts < maxAttemptsPerRequest {
		page, err := fetch(ctx, cursor)
		if err == nil {
			return page, nil
		}
		if rl, ok := err.(*rateLimitedError); ok {
			delay := changedetect.ParseRetryAfter(rl.retryAfter, time.Now())
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return Page{}, ctx.Err()
			case <-t.C:
			}
			continue // a 429 does not consume an attempt
		}
		lastErr = err
		attempts++
	}
	return Page{}, lastErr
}
