package source

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCursorStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newFakeCursorStore() *fakeCursorStore { return &fakeCursorStore{m: make(map[string]string)} }

func (f *fakeCursorStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[key]
	return v, ok, nil
}

func (f *fakeCursorStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[key] = value
	return nil
}

func TestTicketStreamPagesAndPersistsCursor(t *testing.T) {
	pages := []Page{
		{Tickets: []Ticket{{ID: "1"}}, NextCursor: "c1", HasMore: true},
		{Tickets: []Ticket{{ID: "2"}}, NextCursor: "", HasMore: false},
	}
	call := 0
	fetch := func(ctx context.Context, cursor string) (Page, error) {
		p := pages[call]
		call++
		return p, nil
	}

	cursors := newFakeCursorStore()
	var processed []string
	err := Run(context.Background(), Config{
		Fetch:       fetch,
		CursorKey:   "zendesk_cursor:x",
		CursorStore: cursors,
		ProcessTicket: func(ctx context.Context, t Ticket) error {
			processed = append(processed, t.ID)
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, processed)

	v, ok, _ := cursors.Get(context.Background(), "zendesk_cursor:x")
	require.True(t, ok)
	require.Equal(t, "c1", v)
}

func TestTicketStreamDeletesInsteadOfProcessing(t *testing.T) {
	fetch := func(ctx context.Context, cursor string) (Page, error) {
		return Page{Tickets: []Ticket{{ID: "1", Status: "deleted"}}}, nil
	}
	var deleted, processed []string
	err := Run(context.Background(), Config{
		Fetch: fetch,
		DeleteTicket: func(ctx context.Context, t Ticket) error {
			deleted = append(deleted, t.ID)
			return nil
		},
		ProcessTicket: func(ctx context.Context, t Ticket) error {
			processed = append(processed, t.ID)
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, deleted)
	require.Empty(t, processed)
}

func TestTicketStreamRateLimitRetriesWithoutConsumingAttempt(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, cursor string) (Page, error) {
		calls++
		if calls <= 5 {
			return Page{}, NewRateLimitedError("0")
		}
		return Page{Tickets: nil, HasMore: false}, nil
	}
	err := Run(context.Background(), Config{Fetch: fetch})
	require.NoError(t, err)
	require.Equal(t, 6, calls)
}

func TestTicketStreamFailsAfterThreeAttempts(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, cursor string) (Page, error) {
		calls++
		return Page{}, errBoom
	}
	err := Run(context.Background(), Config{Fetch: fetch})
	require.Error(t, err)
	require.Equal(t, maxAttemptsPerRequest, calls)
}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }

var errBoom = boomErr{}
