package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/lexfuse/lexfuse/internal/config"
	"github.com/lexfuse/lexfuse/internal/embed"
	"github.com/lexfuse/lexfuse/internal/kg"
	"github.com/lexfuse/lexfuse/internal/search"
	"github.com/lexfuse/lexfuse/internal/store"
	"github.com/lexfuse/lexfuse/internal/telemetry"
)

// deps bundles the wired pipeline and its teardown.
type deps struct {
	coordinator *search.SearchCoordinator
	store       *store.SQLiteStore
	keyword     store.KeywordIndex
	graph       kg.KnowledgeGraph
	embedder    embed.Embedder
	metrics     *telemetry.SearchMetrics
}

func (d *deps) close(ctx context.Context) {
	if d.graph != nil {
		_ = d.graph.Close(ctx)
	}
	if d.keyword != nil {
		_ = d.keyword.Close()
	}
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// buildDeps wires the full pipeline from configuration. The keyword
// index and knowledge graph are optional paths: failures there log a
// warning and degrade, while the store and embedder are required.
func buildDeps(ctx context.Context, offline bool) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	d := &deps{metrics: telemetry.NewSearchMetrics()}

	d.store, err = store.NewSQLiteStore(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}

	keywordPath := filepath.Join(cfg.Store.DataDir, "keyword.bleve")
	keyword, err := store.NewBleveKeywordIndex(keywordPath)
	if err != nil {
		slog.Warn("keyword_index_unavailable",
			slog.String("path", keywordPath),
			slog.String("error", err.Error()))
	} else {
		d.keyword = keyword
	}

	d.embedder = buildEmbedder(cfg, offline)

	if cfg.KnowledgeGraph.URI != "" {
		graph, err := kg.NewNeo4jGraph(ctx, kg.Neo4jConfig{
			URI:      cfg.KnowledgeGraph.URI,
			Username: cfg.KnowledgeGraph.Username,
			Password: cfg.KnowledgeGraph.Password,
			Timeout:  cfg.KnowledgeGraph.Timeout,
		})
		if err != nil {
			slog.Warn("knowledge_graph_unavailable",
				slog.String("uri", cfg.KnowledgeGraph.URI),
				slog.String("error", err.Error()))
		} else {
			d.graph = graph
		}
	}

	d.coordinator, err = search.NewSearchCoordinator(
		ctx, d.embedder, d.store, d.keyword, d.graph, d.metrics, searchConfig(cfg))
	if err != nil {
		d.close(ctx)
		return nil, err
	}
	return d, nil
}

func buildEmbedder(cfg *config.Config, offline bool) embed.Embedder {
	if offline {
		return embed.NewStaticEmbedder()
	}
	ollama := embed.NewOllamaEmbedder(embed.OllamaConfig{
		Host:       cfg.Embeddings.Host,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    cfg.Embeddings.Timeout,
	})
	return embed.NewCachedEmbedder(ollama, cfg.Embeddings.CacheSize)
}

// searchConfig maps file configuration onto the retrieval constants.
// The expanded weight splits 3:2 between related-article and
// related-crime sub-queries.
func searchConfig(cfg *config.Config) search.Config {
	return search.Config{
		RRFK:                 cfg.Search.RRFK,
		SemanticWeight:       cfg.Search.SemanticWeight,
		KeywordWeight:        cfg.Search.KeywordWeight,
		RelatedArticleWeight: cfg.Search.ExpandedWeight * 3 / 7,
		RelatedCrimeWeight:   cfg.Search.ExpandedWeight * 2 / 7,
		MaxSubQueries:        cfg.Search.MaxSubQueries,
		KGTopK:               cfg.KnowledgeGraph.TopK,
		Parallelism:          cfg.Search.Parallelism,
		EnhanceTimeout:       cfg.Search.EnhanceTimeout,
		BoostCapFactor:       cfg.Search.BoostCapFactor,
		MinContentLength:     cfg.Content.MinLength,
		ContentCacheSize:     cfg.Content.CacheSize,
	}
}
