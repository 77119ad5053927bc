package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"corpussync/internal/fingerprint"
)

// postgresStore is the embedded columnar-table backend (§6 backend 1)
// realized on Postgres+pgvector, bundled with the pipeline process
// rather than run as a standalone service. It ensures the chunk table
// and a separate metadata kv table on Open.
type postgresStore struct {
	pool      *pgxpool.Pool
	dimension int
	metric    string
}

// NewPostgres wraps an already-configured pgxpool.Pool as a VectorStore.
func NewPostgres(pool *pgxpool.Pool, dimension int, metric string) VectorStore {
	return &postgresStore{pool: pool, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
}

func (p *postgresStore) Open(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("store: ensure pgvector extension: %w", err)
	}
	vecType := "vector"
	if p.dimension > 0 {
		vecType = fmt.Sprintf("vector(%d)", p.dimension)
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
  chunk_id TEXT PRIMARY KEY,
  embedding %s,
  product_name TEXT NOT NULL DEFAULT '',
  version TEXT NOT NULL DEFAULT '',
  branch TEXT NOT NULL DEFAULT '',
  repo TEXT NOT NULL DEFAULT '',
  heading_hierarchy JSONB NOT NULL DEFAULT '[]'::jsonb,
  section TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL,
  url TEXT NOT NULL,
  hash TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  total_chunks INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_url_idx ON chunks (url);
`, vecType))
	if err != nil {
		return fmt.Errorf("store: ensure chunks table: %w", err)
	}
	return p.InitMetadata(ctx)
}

func (p *postgresStore) InitMetadata(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
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

func (p *postgresStore) Insert(ctx context.Context, c Chunk) error {
	if c.Hash == "" {
		c.Hash = fingerprint.Hash(c.Content)
	}
	hierarchy, err := json.Marshal(c.HeadingHierarchy)
	if err != nil {
		return fmt.Errorf("store: marshal heading hierarchy: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO chunks (chunk_id, embedding, product_name, version, branch, repo, heading_hierarchy, section, content, url, hash, chunk_index, total_chunks)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (chunk_id) DO UPDATE SET
  embedding = EXCLUDED.embedding, product_name = EXCLUDED.product_name, version = EXCLUDED.version,
  branch = EXCLUDED.branch, repo = EXCLUDED.repo, heading_hierarchy = EXCLUDED.heading_hierarchy,
  section = EXCLUDED.section, content = EXCLUDED.content, url = EXCLUDED.url, hash = EXCLUDED.hash,
  chunk_index = EXCLUDED.chunk_index, total_chunks = EXCLUDED.total_chunks
`, c.ChunkID, pgvector.NewVector(c.Embedding), c.ProductName, c.Version, c.Branch, c.Repo,
		hierarchy, c.Section, c.Content, c.URL, c.Hash, c.ChunkIndex, c.TotalChunks)
	return err
}

func (p *postgresStore) GetHashesByURL(ctx context.Context, url string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT hash FROM chunks WHERE url = $1`, url)
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

func (p *postgresStore) RemoveByURL(ctx context.Context, url string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE url = $1`, url)
	return err
}

func (p *postgresStore) RemoveObsoleteURLs(ctx context.Context, prefix string, visited map[string]struct{}) error {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT url FROM chunks WHERE url LIKE $1`, prefix+"%")
	if err != nil {
		return err
	}
	var toDelete []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		if _, ok := visited[u]; !ok {
			toDelete = append(toDelete, u)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, u := range toDelete {
		if err := p.RemoveByURL(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) RemoveObsoleteFiles(ctx context.Context, basePath string, seen map[string]struct{}, urlRewrite string) error {
	rewrite := strings.TrimSuffix(strings.TrimPrefix(urlRewrite, "./"), "/")
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT url FROM chunks WHERE url LIKE $1`, basePath+"%")
	if err != nil {
		return err
	}
	var toDelete []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		candidate := u
		if rewrite != "" {
			candidate = strings.TrimPrefix(u, rewrite+"/")
		}
		_, seenCandidate := seen[candidate]
		_, seenRaw := seen[u]
		if !seenCandidate && !seenRaw {
			toDelete = append(toDelete, u)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, u := range toDelete {
		if err := p.RemoveByURL(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (p *postgresStore) GetURLsByPrefix(ctx context.Context, prefix string) (map[string]struct{}, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT url FROM chunks WHERE url LIKE $1`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = struct{}{}
	}
	return out, rows.Err()
}

func (p *postgresStore) GetMetadata(ctx context.Context, key string, def string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM chunk_metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (p *postgresStore) SetMetadata(ctx context.Context, key, value string, _ int) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO chunk_metadata (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
`, key, value)
	return err
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}
