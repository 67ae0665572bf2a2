// Package search implements the hybrid multi-signal retrieval core:
// vector similarity, keyword fusion, knowledge-graph expansion, adaptive
// boosting, and category-balanced ranking.
package search

import (
	"time"

	"github.com/lexfuse/lexfuse/internal/store"
)

// Source path labels attached to candidates for observability.
const (
	SourceOriginal = "original"
	SourceSemantic = "semantic"
	SourceKeyword  = "keyword"
	SourceHybrid   = "hybrid"
)

// ScoredCandidate is one hit from a single retrieval path.
type ScoredCandidate struct {
	Doc        store.DocumentRef
	Similarity float64 // in [0,1]
	SourcePath string
}

// FusionRecord accumulates a document's evidence across sub-query paths.
// Owned by one fusion pass, keyed by normalized DocumentRef, never shared
// between queries.
type FusionRecord struct {
	Doc             store.DocumentRef
	TotalScore      float64
	MaxSimilarity   float64
	Sources         []string
	AppearanceCount int
	Best            ScoredCandidate
	RareBoosted     bool
}

// EnrichedResult is a candidate resolved to its document fields.
type EnrichedResult struct {
	ScoredCandidate
	Title string
	Body  string
	Meta  store.DocumentMeta
}

// Config carries the tunable retrieval constants. Zero values are
// replaced by defaults in applyDefaults.
type Config struct {
	// RRF.
	RRFK           int
	SemanticWeight float64
	KeywordWeight  float64

	// Expansion weights.
	OriginalWeight       float64
	RelatedArticleWeight float64
	RelatedCrimeWeight   float64
	MaxSubQueries        int
	KGTopK               int

	// Fan-out.
	Parallelism    int
	EnhanceTimeout time.Duration

	// Boosting.
	BoostCapFactor float64

	// Enrichment.
	MinContentLength int
	ContentCacheSize int
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		RRFK:                 DefaultRRFConstant,
		SemanticWeight:       1.0,
		KeywordWeight:        1.0,
		OriginalWeight:       0.5,
		RelatedArticleWeight: 0.3,
		RelatedCrimeWeight:   0.2,
		MaxSubQueries:        5,
		KGTopK:               8,
		Parallelism:          4,
		EnhanceTimeout:       15 * time.Second,
		BoostCapFactor:       1.5,
		MinContentLength:     20,
		ContentCacheSize:     1000,
	}
}

// applyDefaults fills unset fields from DefaultConfig.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.RRFK <= 0 {
		c.RRFK = def.RRFK
	}
	if c.SemanticWeight <= 0 && c.KeywordWeight <= 0 {
		c.SemanticWeight = def.SemanticWeight
		c.KeywordWeight = def.KeywordWeight
	}
	if c.OriginalWeight <= 0 {
		c.OriginalWeight = def.OriginalWeight
	}
	if c.RelatedArticleWeight <= 0 {
		c.RelatedArticleWeight = def.RelatedArticleWeight
	}
	if c.RelatedCrimeWeight <= 0 {
		c.RelatedCrimeWeight = def.RelatedCrimeWeight
	}
	if c.MaxSubQueries <= 0 {
		c.MaxSubQueries = def.MaxSubQueries
	}
	if c.KGTopK <= 0 {
		c.KGTopK = def.KGTopK
	}
	if c.Parallelism <= 0 {
		c.Parallelism = def.Parallelism
	}
	if c.EnhanceTimeout <= 0 {
		c.EnhanceTimeout = def.EnhanceTimeout
	}
	if c.BoostCapFactor < 1.0 {
		c.BoostCapFactor = def.BoostCapFactor
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = def.MinContentLength
	}
	if c.ContentCacheSize <= 0 {
		c.ContentCacheSize = def.ContentCacheSize
	}
}
