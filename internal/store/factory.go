package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BackendConfig selects and configures one VectorStore backend. It
// mirrors the config file's vector_store block (§6).
type BackendConfig struct {
	Backend     string // "memory" | "sqlite" | "postgres" | "qdrant"
	DSN         string // postgres/qdrant connection string
	SQLitePath  string
	Collection  string // qdrant: one collection per (product, version)
	Dimension   int
	Metric      string // cosine|l2|euclidean|ip|dot|manhattan
}

// NewFromConfig constructs, opens, and initializes the metadata
// container for the backend named in cfg.Backend.
func NewFromConfig(ctx context.Context, cfg BackendConfig) (VectorStore, error) {
	var s VectorStore
	switch cfg.Backend {
	case "", "memory":
		s = NewMemory()
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("store: sqlite backend requires a file path")
		}
		sq, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s = sq
	case "postgres", "pgvector", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: postgres backend requires a DSN")
		}
		pool, err := newPGXPool(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("store: connect postgres: %w", err)
		}
		s = NewPostgres(pool, cfg.Dimension, cfg.Metric)
	case "qdrant":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store: qdrant backend requires a DSN")
		}
		q, err := NewQdrant(cfg.DSN, cfg.Collection, cfg.Dimension, cfg.Metric)
		if err != nil {
			return nil, err
		}
		s = q
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	if err := s.InitMetadata(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// CollectionName derives the per-(product, version) collection name the
// remote backend requires (§6 backend 2).
func CollectionName(productName, version string) string {
	return productName + "__" + version
}

func newPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
