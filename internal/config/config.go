// Package config loads and validates lexfuse configuration from YAML
// files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
)

// Config is the root configuration for the search engine.
type Config struct {
	Search         SearchConfig         `yaml:"search"`
	Embeddings     EmbeddingsConfig     `yaml:"embeddings"`
	KnowledgeGraph KnowledgeGraphConfig `yaml:"knowledge_graph"`
	Store          StoreConfig          `yaml:"store"`
	Content        ContentConfig        `yaml:"content"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// SearchConfig controls fusion, expansion, and boosting behavior.
type SearchConfig struct {
	// SemanticWeight and KeywordWeight are the RRF contribution weights
	// for the primary query's result lists.
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	// ExpandedWeight is the RRF weight applied to expanded sub-query lists.
	ExpandedWeight float64 `yaml:"expanded_weight"`
	// RRFK is the rank smoothing constant in the RRF formula.
	RRFK int `yaml:"rrf_k"`
	// MaxSubQueries bounds how many expanded sub-queries run per search.
	MaxSubQueries int `yaml:"max_sub_queries"`
	// Parallelism bounds concurrent sub-query execution.
	Parallelism int `yaml:"parallelism"`
	// EnhanceTimeout is the budget for a full enhanced search pass.
	EnhanceTimeout time.Duration `yaml:"enhance_timeout"`
	// BoostCapFactor caps boosted scores at factor x the pre-boost maximum.
	BoostCapFactor float64 `yaml:"boost_cap_factor"`
}

// EmbeddingsConfig configures the embedding service client.
type EmbeddingsConfig struct {
	Host       string        `yaml:"host"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// KnowledgeGraphConfig configures the Neo4j legal knowledge graph.
type KnowledgeGraphConfig struct {
	URI      string        `yaml:"uri"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	// TopK bounds related entities returned per expansion lookup.
	TopK    int           `yaml:"top_k"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig configures local document and vector storage.
type StoreConfig struct {
	// DataDir holds the SQLite database, vectors, and keyword index.
	DataDir string `yaml:"data_dir"`
}

// ContentConfig controls enrichment and length filtering.
type ContentConfig struct {
	// MinLength drops enriched case content shorter than this many runes.
	MinLength int `yaml:"min_length"`
	// CacheSize is the enrichment LRU capacity.
	CacheSize int `yaml:"cache_size"`
	// Preview is the content preview length used when full content is off.
	Preview int `yaml:"preview"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			SemanticWeight: 1.0,
			KeywordWeight:  1.0,
			ExpandedWeight: 0.7,
			RRFK:           60,
			MaxSubQueries:  5,
			Parallelism:    4,
			EnhanceTimeout: 15 * time.Second,
			BoostCapFactor: 1.5,
		},
		Embeddings: EmbeddingsConfig{
			Host:       "http://localhost:11434",
			Model:      "bge-m3",
			Dimensions: 1024,
			Timeout:    30 * time.Second,
			CacheSize:  1000,
		},
		KnowledgeGraph: KnowledgeGraphConfig{
			URI:     "bolt://localhost:7687",
			TopK:    8,
			Timeout: 5 * time.Second,
		},
		Store: StoreConfig{
			DataDir: defaultDataDir(),
		},
		Content: ContentConfig{
			MinLength: 20,
			CacheSize: 512,
			Preview:   200,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "lexfuse")
	}
	return filepath.Join(home, ".lexfuse")
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, lexerrors.New(lexerrors.ErrCodeConfigNotFound,
					fmt.Sprintf("reading config file %s", path), err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, lexerrors.New(lexerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("parsing config file %s", path), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies LEXFUSE_* environment variables on top of
// the loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEXFUSE_EMBEDDINGS_HOST"); v != "" {
		cfg.Embeddings.Host = v
	}
	if v := os.Getenv("LEXFUSE_EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("LEXFUSE_NEO4J_URI"); v != "" {
		cfg.KnowledgeGraph.URI = v
	}
	if v := os.Getenv("LEXFUSE_NEO4J_USER"); v != "" {
		cfg.KnowledgeGraph.Username = v
	}
	if v := os.Getenv("LEXFUSE_NEO4J_PASSWORD"); v != "" {
		cfg.KnowledgeGraph.Password = v
	}
	if v := os.Getenv("LEXFUSE_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("LEXFUSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LEXFUSE_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Search.RRFK = k
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Search.RRFK <= 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("search.rrf_k must be positive, got %d", c.Search.RRFK), nil)
	}
	if c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 || c.Search.ExpandedWeight < 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"search weights must be non-negative", nil)
	}
	if c.Search.SemanticWeight == 0 && c.Search.KeywordWeight == 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"at least one of search.semantic_weight or search.keyword_weight must be positive", nil)
	}
	if c.Search.MaxSubQueries < 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"search.max_sub_queries must be non-negative", nil)
	}
	if c.Search.Parallelism <= 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"search.parallelism must be positive", nil)
	}
	if c.Search.BoostCapFactor < 1.0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("search.boost_cap_factor must be >= 1.0, got %.2f", c.Search.BoostCapFactor), nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	if c.Embeddings.CacheSize <= 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"embeddings.cache_size must be positive", nil)
	}
	if c.Content.MinLength < 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"content.min_length must be non-negative", nil)
	}
	if c.Content.CacheSize <= 0 {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"content.cache_size must be positive", nil)
	}
	if c.Store.DataDir == "" {
		return lexerrors.New(lexerrors.ErrCodeConfigInvalid,
			"store.data_dir must not be empty", nil)
	}
	return nil
}
