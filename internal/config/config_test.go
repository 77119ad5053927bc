package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(yaml), 0o644))
	return p
}

func TestLoadParsesWebsiteSource(t *testing.T) {
	p := writeConfig(t, `
sources:
  - type: website
    name: docs
    product_name: docs
    version: v1
    base_url: https://example.com/docs
embedding:
  base_url: http://localhost:8080
  model: embed
vector_store:
  backend: memory
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, SourceWebsite, cfg.Sources[0].Type)
	require.Equal(t, "v1", cfg.Sources[0].Version)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("DOCS_API_KEY", "secret123")
	p := writeConfig(t, `
sources:
  - type: zendesk
    name: tickets
    version: v1
    api_base_url: https://example.zendesk.com
    api_key: ${DOCS_API_KEY}
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "secret123", cfg.Sources[0].APIKey)
}

func TestLoadRequiresVersionForNonCodeSources(t *testing.T) {
	p := writeConfig(t, `
sources:
  - type: local_directory
    name: local
    path: /tmp/docs
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadCodeSourceFallsBackBranchToLocal(t *testing.T) {
	p := writeConfig(t, `
sources:
  - type: code
    name: repo
    product_name: svc
    path: /tmp/repo
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Sources[0].Branch)
}

func TestLoadRejectsUnknownSourceType(t *testing.T) {
	p := writeConfig(t, `
sources:
  - type: carrier_pigeon
    name: bad
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadRequiresSourceName(t *testing.T) {
	p := writeConfig(t, `
sources:
  - type: website
    base_url: https://example.com
    version: v1
`)
	_, err := Load(p)
	require.Error(t, err)
}
