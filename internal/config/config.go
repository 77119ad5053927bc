// Package config loads the sync engine's YAML configuration: a
// discriminated list of sources (website, local_directory, code,
// zendesk) plus the vector-store and embedding-endpoint settings shared
// across all of them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// SourceType discriminates the sources list (§6).
type SourceType string

const (
	SourceWebsite       SourceType = "website"
	SourceLocalDirectory SourceType = "local_directory"
	SourceCode          SourceType = "code"
	SourceZendesk       SourceType = "zendesk"
)

// SourceConfig is one entry in the top-level sources list. Only the
// fields relevant to Type are populated; the rest are zero-valued.
type SourceConfig struct {
	Type        SourceType `yaml:"type"`
	Name        string     `yaml:"name"`
	ProductName string     `yaml:"product_name"`
	Version     string     `yaml:"version"`

	// website
	BaseURL       string   `yaml:"base_url"`
	KnownURLs     []string `yaml:"known_urls"`
	SitemapURL    string   `yaml:"sitemap_url"`
	ForceFullSync bool     `yaml:"force_full_sync"`

	// local_directory / code (shared walk settings)
	Path              string   `yaml:"path"`
	Recursive         bool     `yaml:"recursive"`
	IncludeExtensions []string `yaml:"include_extensions"`
	ExcludeExtensions []string `yaml:"exclude_extensions"`
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`

	// code
	RepoURL string `yaml:"repo_url"`
	Branch  string `yaml:"branch"`

	// zendesk / ticket stream
	APIBaseURL string `yaml:"api_base_url"`
	APIKey     string `yaml:"api_key"`
}

// EmbeddingConfig describes the embedding endpoint used to vectorize
// chunks before they're handed to the vector store.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Path       string        `yaml:"path"`
	Model      string        `yaml:"model"`
	APIHeader  string        `yaml:"api_header"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	Dimensions int           `yaml:"dimensions"`
}

// VectorStoreConfig selects and configures one of the backends behind
// store.VectorStore.
type VectorStoreConfig struct {
	Backend          string `yaml:"backend"` // "qdrant", "postgres", "sqlite", "memory"
	ConnectionString string `yaml:"connection_string"`
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	SQLitePath       string `yaml:"sqlite_path"`
}

// MirrorConfig optionally enables the plain-Markdown mirror (§4.3/§4.7).
// When Bucket is set the mirror is backed by S3Config below; otherwise it
// runs against an in-process memory store (dev/test use only).
type MirrorConfig struct {
	Enabled bool     `yaml:"enabled"`
	Bucket  string   `yaml:"bucket"`
	Prefix  string   `yaml:"prefix"`
	S3      S3Config `yaml:"s3"`
}

// S3SSEConfig selects server-side encryption for objects written through
// objectstore.S3Store.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", "sse-s3", "sse-kms"
	KMSKeyID string `yaml:"kms_key_id"`
}

// S3Config configures objectstore.NewS3Store. It covers AWS S3 proper and
// S3-compatible services (MinIO) via Endpoint/UsePathStyle.
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Prefix                string      `yaml:"prefix"`
	Region                string      `yaml:"region"`
	Endpoint              string      `yaml:"endpoint"`
	AccessKey             string      `yaml:"access_key"`
	SecretKey             string      `yaml:"secret_key"`
	UsePathStyle          bool        `yaml:"use_path_style"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// ObsConfig configures the optional structured-logging/metrics tier
// (internal/observability). Left zero-valued, the engine runs with only
// internal/logging's process logger and no OTLP/Prometheus exposition.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint"`
	LogLevel       string `yaml:"log_level"`
	LogPath        string `yaml:"log_path"`
	PrometheusAddr string `yaml:"prometheus_addr"`
}

// Config is the top-level document.
type Config struct {
	Sources     []SourceConfig    `yaml:"sources"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Mirror      MirrorConfig      `yaml:"mirror"`
	Obs         ObsConfig         `yaml:"observability"`
}

// Load reads and validates a config file at path. Env vars referenced as
// ${VAR} in the file are substituted before parsing, matching the
// teacher's own env-overlay convention (dotenv, then expand-then-parse).
func Load(path string) (Config, error) {
	_ = godotenv.Overload()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate enforces §6's "missing version is an error for non-code
// sources; code sources fall back branch -> \"local\"" rule, along with
// the other required fields per source type.
func validate(cfg Config) error {
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Name == "" {
			return fmt.Errorf("config: sources[%d]: name is required", i)
		}
		switch s.Type {
		case SourceWebsite:
			if s.BaseURL == "" {
				return fmt.Errorf("config: source %q: base_url is required", s.Name)
			}
			if s.Version == "" {
				return fmt.Errorf("config: source %q: version is required", s.Name)
			}
		case SourceLocalDirectory:
			if s.Path == "" {
				return fmt.Errorf("config: source %q: path is required", s.Name)
			}
			if s.Version == "" {
				return fmt.Errorf("config: source %q: version is required", s.Name)
			}
		case SourceCode:
			if s.Path == "" && s.RepoURL == "" {
				return fmt.Errorf("config: source %q: path or repo_url is required", s.Name)
			}
			if s.Branch == "" {
				s.Branch = "local"
			}
			if s.Version == "" {
				s.Version = s.Branch
			}
		case SourceZendesk:
			if s.APIBaseURL == "" {
				return fmt.Errorf("config: source %q: api_base_url is required", s.Name)
			}
			if s.Version == "" {
				return fmt.Errorf("config: source %q: version is required", s.Name)
			}
		default:
			return fmt.Errorf("config: source %q: unknown type %q", s.Name, s.Type)
		}
	}
	return nil
}
