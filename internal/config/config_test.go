package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 1.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 1.0, cfg.Search.KeywordWeight)
	assert.Equal(t, 0.7, cfg.Search.ExpandedWeight)
	assert.Equal(t, 1024, cfg.Embeddings.Dimensions)
	assert.Equal(t, 20, cfg.Content.MinLength)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Search.RRFK, cfg.Search.RRFK)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
search:
  semantic_weight: 2.0
  keyword_weight: 0.5
  rrf_k: 30
  parallelism: 2
  enhance_timeout: 5s
embeddings:
  model: custom-embed
content:
  min_length: 100
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.5, cfg.Search.KeywordWeight)
	assert.Equal(t, 30, cfg.Search.RRFK)
	assert.Equal(t, 5*time.Second, cfg.Search.EnhanceTimeout)
	assert.Equal(t, "custom-embed", cfg.Embeddings.Model)
	assert.Equal(t, 100, cfg.Content.MinLength)

	// Unset fields keep defaults.
	assert.Equal(t, 0.7, cfg.Search.ExpandedWeight)
	assert.Equal(t, 1024, cfg.Embeddings.Dimensions)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEXFUSE_NEO4J_URI", "bolt://graph:7687")
	t.Setenv("LEXFUSE_EMBEDDINGS_MODEL", "env-model")
	t.Setenv("LEXFUSE_RRF_K", "45")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph:7687", cfg.KnowledgeGraph.URI)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
	assert.Equal(t, 45, cfg.Search.RRFK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rrf k", func(c *Config) { c.Search.RRFK = 0 }},
		{"negative weight", func(c *Config) { c.Search.SemanticWeight = -1 }},
		{"both primary weights zero", func(c *Config) {
			c.Search.SemanticWeight = 0
			c.Search.KeywordWeight = 0
		}},
		{"zero parallelism", func(c *Config) { c.Search.Parallelism = 0 }},
		{"boost cap below one", func(c *Config) { c.Search.BoostCapFactor = 0.5 }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"negative min length", func(c *Config) { c.Content.MinLength = -1 }},
		{"empty data dir", func(c *Config) { c.Store.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
