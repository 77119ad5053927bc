// Package store implements the vector-store reconciler's backend
// contract (§4.6): four interchangeable backends — in-memory, embedded
// columnar tables (SQLite, Postgres+pgvector) and a remote vector
// service (Qdrant) — behind a single VectorStore interface, plus the
// per-url swap semantics that sit on top of it.
package store

import "context"

// Chunk is a bounded, embedding-ready text segment with hierarchical
// context prefix, as produced by the markdown and code chunkers.
type Chunk struct {
	ChunkID          string
	Content          string
	Hash             string
	URL              string
	ProductName      string
	Version          string
	Branch           string
	Repo             string
	HeadingHierarchy []string
	Section          string
	ChunkIndex       int
	TotalChunks      int
	Embedding        []float32
}

// VectorStore is the reconciler's backend contract. Implementations must
// tolerate duplicate-id inserts idempotently and must never surface
// metadata rows from similarity or prefix queries.
type VectorStore interface {
	// Open initializes the connection. For backends with a notion of
	// collection, it creates one if missing; "already exists" errors
	// are swallowed.
	Open(ctx context.Context) error

	// InitMetadata ensures the side-band metadata container exists. It
	// is a no-op on backends where metadata rows live alongside chunks.
	InitMetadata(ctx context.Context) error

	// Insert upserts a chunk by ChunkID. If c.Hash is empty it is
	// derived from c.Content. Empty Branch/Repo are stored as empty
	// strings, never as null.
	Insert(ctx context.Context, c Chunk) error

	// GetHashesByURL returns the sorted multiset of stored chunk hashes
	// for url; the basis of the content-hash equality layer (§4.3.4).
	GetHashesByURL(ctx context.Context, url string) ([]string, error)

	// RemoveByURL deletes every chunk whose url field exactly matches
	// url (not a prefix match).
	RemoveByURL(ctx context.Context, url string) error

	// RemoveObsoleteURLs deletes every chunk whose url starts with
	// prefix and is absent from visited. Metadata rows are skipped.
	RemoveObsoleteURLs(ctx context.Context, prefix string, visited map[string]struct{}) error

	// RemoveObsoleteFiles is the file-source variant of
	// RemoveObsoleteURLs: it normalizes a "./" prefix and trailing
	// slash in urlRewrite before comparing against seen.
	RemoveObsoleteFiles(ctx context.Context, basePath string, seen map[string]struct{}, urlRewrite string) error

	// GetURLsByPrefix returns the de-duplicated set of urls stored
	// under prefix, used to pre-seed the crawl queue.
	GetURLsByPrefix(ctx context.Context, prefix string) (map[string]struct{}, error)

	// GetMetadata reads a side-band kv entry, returning def if absent.
	GetMetadata(ctx context.Context, key string, def string) (string, error)

	// SetMetadata writes a side-band kv entry. dim is the vector
	// dimension backends that require a zero-vector placeholder use for
	// the metadata point.
	SetMetadata(ctx context.Context, key, value string, dim int) error

	Close() error
}

// Reconcile implements the per-url swap semantics of §4.6: compare new
// vs. stored hash multisets; if equal, do nothing; otherwise delete the
// url's chunks and insert the new set. It is not transactional across
// the delete+insert pair — callers rely on failure gating (§4.3) to
// retry a crash mid-swap.
func Reconcile(ctx context.Context, s VectorStore, url string, chunks []Chunk) (changed bool, err error) {
	newHashes := hashesOf(chunks)
	oldHashes, err := s.GetHashesByURL(ctx, url)
	if err != nil {
		return false, err
	}
	if multisetEqual(newHashes, oldHashes) {
		return false, nil
	}
	if err := s.RemoveByURL(ctx, url); err != nil {
		return false, err
	}
	for _, c := range chunks {
		if err := s.Insert(ctx, c); err != nil {
			return false, err
		}
	}
	return true, nil
}
