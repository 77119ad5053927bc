// Command corpussync-sync runs the incremental crawl-and-sync engine
// against a YAML config file.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"corpussync/internal/browser"
	"corpussync/internal/config"
	"corpussync/internal/embedding"
	"corpussync/internal/logging"
	"corpussync/internal/mirror"
	"corpussync/internal/objectstore"
	"corpussync/internal/observability"
	"corpussync/internal/store"
	"corpussync/internal/sync"
	"corpussync/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "corpussync-sync",
		Short: "Incremental crawl-and-sync engine for RAG document ingestion",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(syncCmd())
	root.AddCommand(validateConfigCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		logging.Log.WithError(err).Error("corpussync-sync: command failed")
		os.Exit(1)
	}
}

func syncCmd() *cobra.Command {
	var sourceFilter string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass across configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if sourceFilter != "" {
				cfg.Sources = filterSources(cfg.Sources, sourceFilter)
				if len(cfg.Sources) == 0 {
					return fmt.Errorf("no source named %q in %s", sourceFilter, configPath)
				}
			}

			engine, closeFn, err := buildEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			return engine.Run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&sourceFilter, "source", "", "run only the named source")
	return cmd
}

func validateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Parse and validate the config file without running a sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.Log.WithField("sources", len(cfg.Sources)).Info("corpussync-sync: config is valid")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Version)
			return nil
		},
	}
}

func filterSources(all []config.SourceConfig, name string) []config.SourceConfig {
	for _, s := range all {
		if s.Name == name {
			return []config.SourceConfig{s}
		}
	}
	return nil
}

// buildEngine wires up the vector store, embedding client, browser
// driver, optional mirror, and optional observability tier (structured
// logging, OTel metrics/tracing, Prometheus exposition) from the loaded
// config. The returned close func tears down the browser session and any
// observability exporters/servers that were started.
func buildEngine(ctx context.Context, cfg config.Config) (*sync.Engine, func(), error) {
	var closers []func()

	if cfg.Obs.LogLevel != "" || cfg.Obs.LogPath != "" {
		observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)
	}
	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			return nil, nil, fmt.Errorf("corpussync-sync: init otel: %w", err)
		}
		closers = append(closers, func() { _ = shutdown(context.Background()) })
	}

	var metrics *observability.Metrics
	if cfg.Obs.OTLP != "" || cfg.Obs.PrometheusAddr != "" {
		m, err := observability.NewMetrics("corpussync")
		if err != nil {
			return nil, nil, fmt.Errorf("corpussync-sync: init metrics: %w", err)
		}
		metrics = m
		if cfg.Obs.PrometheusAddr != "" {
			srv := m.ServePrometheus(cfg.Obs.PrometheusAddr)
			closers = append(closers, func() { _ = srv.Close() })
		}
	}

	vs, err := store.NewFromConfig(ctx, store.BackendConfig{
		Backend:    cfg.VectorStore.Backend,
		DSN:        firstNonEmpty(cfg.VectorStore.ConnectionString, cfg.VectorStore.QdrantHost),
		SQLitePath: cfg.VectorStore.SQLitePath,
		Dimension:  cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("corpussync-sync: vector store: %w", err)
	}

	var oracle embedding.Oracle
	if cfg.Embedding.BaseURL != "" {
		oracle = embedding.NewClient(embedding.Config{
			BaseURL:   cfg.Embedding.BaseURL,
			Path:      cfg.Embedding.Path,
			Model:     cfg.Embedding.Model,
			APIHeader: cfg.Embedding.APIHeader,
			APIKey:    cfg.Embedding.APIKey,
			Timeout:   cfg.Embedding.Timeout,
		})
	} else {
		oracle = embedding.NewDeterministic(cfg.Embedding.Dimensions)
	}

	driver := browser.New(60 * time.Second)
	fetcher := sync.NewBrowserFetcher(driver)

	var mirrorStore mirror.Mirror
	if cfg.Mirror.Enabled {
		if cfg.Mirror.Bucket != "" {
			s3cfg := cfg.Mirror.S3
			s3cfg.Bucket = cfg.Mirror.Bucket
			if s3cfg.Prefix == "" {
				s3cfg.Prefix = cfg.Mirror.Prefix
			}
			backend, err := objectstore.NewS3Store(ctx, s3cfg)
			if err != nil {
				return nil, nil, fmt.Errorf("corpussync-sync: mirror s3 backend: %w", err)
			}
			mirrorStore = mirror.New(backend)
		} else {
			mirrorStore = mirror.New(objectstore.NewMemoryStore())
		}
	}

	engine := &sync.Engine{
		Store:      vs,
		Embedder:   oracle,
		Fetcher:    fetcher,
		Classifier: fetcher,
		Mirror:     mirrorStore,
		Metrics:    metrics,
	}
	closeFn := func() {
		driver.Close()
		_ = vs.Close()
		for _, c := range closers {
			c()
		}
	}
	return engine, closeFn, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
