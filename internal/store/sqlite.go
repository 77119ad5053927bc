package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"corpussync/internal/fingerprint"
)

// sqliteStore is a pure-Go, dependency-free variant of the embedded
// columnar backend for operators without a running Postgres. It
// implements the identical VectorStore contract as postgresStore; the
// embedding column is stored as a JSON-encoded float array since SQLite
// has no native vector type and this backend does not perform
// similarity search (out of scope, §1 non-goals).
type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database file at path as a
// VectorStore.
func NewSQLite(path string) (VectorStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Open(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS chunks (
  chunk_id TEXT PRIMARY KEY,
  embedding TEXT NOT NULL DEFAULT '[]',
  product_name TEXT NOT NULL DEFAULT '',
  version TEXT NOT NULL DEFAULT '',
  branch TEXT NOT NULL DEFAULT '',
  repo TEXT NOT NULL DEFAULT '',
  heading_hierarchy TEXT NOT NULL DEFAULT '[]',
  section TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL,
  url TEXT NOT NULL,
  hash TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  total_chunks INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_url_idx ON chunks (url);
`)
	if err != nil {
		return fmt.Errorf("store: ensure chunks table: %w", err)
	}
	return s.InitMetadata(ctx)
}

func (s *sqliteStore) InitMetadata(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS chunk_metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("store: ensure metadata table: %w", err)
	}
	return nil
}

func (s *sqliteStore) Insert(ctx context.Context, c Chunk) error {
	if c.Hash == "" {
		c.Hash = fingerprint.Hash(c.Content)
	}
	hierarchy, err := json.Marshal(c.HeadingHierarchy)
	if err != nil {
		return fmt.Errorf("store: marshal heading hierarchy: %w", err)
	}
	embedding, err := json.Marshal(c.Embedding)
	if err != nil {
		return fmt.Errorf("store: marshal embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chunks (chunk_id, embedding, product_name, version, branch, repo, heading_hierarchy, section, content, url, hash, chunk_index, total_chunks)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET
  embedding=excluded.embedding, product_name=excluded.product_name, version=excluded.version,
  branch=excluded.branch, repo=excluded.repo, heading_hierarchy=excluded.heading_hierarchy,
  section=excluded.section, content=excluded.content, url=excluded.url, hash=excluded.hash,
  chunk_index=excluded.chunk_index, total_chunks=excluded.total_chunks
`, c.ChunkID, string(embedding), c.ProductName, c.Version, c.Branch, c.Repo,
		string(hierarchy), c.Section, c.Content, c.URL, c.Hash, c.ChunkIndex, c.TotalChunks)
	return err
}

func (s *sqliteStore) GetHashesByURL(ctx context.Context, url string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM chunks WHERE url = ?`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func (s *sqliteStore) RemoveByURL(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE url = ?`, url)
	return err
}

func (s *sqliteStore) urlsLike(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT url FROM chunks WHERE url LIKE ?`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RemoveObsoleteURLs(ctx context.Context, prefix string, visited map[string]struct{}) error {
	urls, err := s.urlsLike(ctx, prefix+"%")
	if err != nil {
		return err
	}
	for _, u := range urls {
		if _, ok := visited[u]; ok {
			continue
		}
		if err := s.RemoveByURL(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) RemoveObsoleteFiles(ctx context.Context, basePath string, seen map[string]struct{}, urlRewrite string) error {
	rewrite := strings.TrimSuffix(strings.TrimPrefix(urlRewrite, "./"), "/")
	urls, err := s.urlsLike(ctx, basePath+"%")
	if err != nil {
		return err
	}
	for _, u := range urls {
		candidate := u
		if rewrite != "" {
			candidate = strings.TrimPrefix(u, rewrite+"/")
		}
		_, seenCandidate := seen[candidate]
		_, seenRaw := seen[u]
		if seenCandidate || seenRaw {
			continue
		}
		if err := s.RemoveByURL(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) GetURLsByPrefix(ctx context.Context, prefix string) (map[string]struct{}, error) {
	urls, err := s.urlsLike(ctx, prefix+"%")
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		out[u] = struct{}{}
	}
	return out, nil
}

func (s *sqliteStore) GetMetadata(ctx context.Context, key string, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM chunk_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *sqliteStore) SetMetadata(ctx context.Context, key, value string, _ int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chunk_metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value
`, key, value)
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }
