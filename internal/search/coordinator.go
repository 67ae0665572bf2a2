package search

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexfuse/lexfuse/internal/embed"
	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
	"github.com/lexfuse/lexfuse/internal/kg"
	"github.com/lexfuse/lexfuse/internal/store"
	"github.com/lexfuse/lexfuse/internal/telemetry"
)

// candidateMultiplier is how many extra candidates each path retrieves
// so the content-length filter can backfill dropped slots.
const candidateMultiplier = 2

// MixedResponse is the result of a mixed article/case search.
type MixedResponse struct {
	Articles []*ArticleResult `json:"articles"`
	Cases    []*CaseResult    `json:"cases"`
}

// HybridResult is one fused hit with its provenance.
type HybridResult struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Similarity  float64  `json:"similarity"`
	Sources     []string `json:"sources,omitempty"`
	Appearances int      `json:"appearances,omitempty"`
	RareBoosted bool     `json:"rare_boosted,omitempty"`
}

// HybridResponse carries fused results plus quality flags.
type HybridResponse struct {
	Results []*HybridResult `json:"results"`
	// Fused is false when the keyword path was unavailable and the
	// ranking is semantic-only.
	Fused bool `json:"fused"`
	// Enhanced is true when knowledge-graph expansion contributed.
	Enhanced bool `json:"enhanced"`
	// Degraded is true when part of the pipeline fell back.
	Degraded bool `json:"degraded"`
}

// CasesPage is one page of the case ranking.
type CasesPage struct {
	Cases   []*CaseResult `json:"cases"`
	HasMore bool          `json:"has_more"`
}

// SearchCoordinator owns the retrieval pipeline and its dependencies.
// Constructed once per process and passed by reference; all per-query
// state lives on the stack of each call.
type SearchCoordinator struct {
	embedder embed.Embedder
	docs     store.DocumentStore
	keyword  store.KeywordIndex // nil disables the keyword path
	planner  *QueryExpansionPlanner

	calc      *VectorCalculator
	ranker    *SimilarityRanker
	fusion    *FusionEngine
	enricher  *ContentEnricher
	filter    *ContentLengthFilter
	formatter *ResultFormatter
	metrics   *telemetry.SearchMetrics

	cfg Config

	// Loaded once at construction; read-only afterwards.
	matrices map[store.Category]*store.VectorMatrix
	metadata map[store.Category]map[store.DocumentRef]store.DocumentMeta
}

// NewSearchCoordinator wires the pipeline. The keyword index and
// knowledge graph are optional; passing nil disables the corresponding
// path. Vector matrices and metadata are loaded eagerly so queries
// never touch the store's vector tables.
func NewSearchCoordinator(
	ctx context.Context,
	embedder embed.Embedder,
	docs store.DocumentStore,
	keyword store.KeywordIndex,
	graph kg.KnowledgeGraph,
	metrics *telemetry.SearchMetrics,
	cfg Config,
) (*SearchCoordinator, error) {
	if embedder == nil {
		return nil, lexerrors.InternalError("embedder is required", nil)
	}
	if docs == nil {
		return nil, lexerrors.InternalError("document store is required", nil)
	}
	cfg.applyDefaults()

	calc, err := NewVectorCalculator(embedder)
	if err != nil {
		return nil, err
	}
	enricher, err := NewContentEnricher(docs, cfg.ContentCacheSize)
	if err != nil {
		return nil, err
	}

	c := &SearchCoordinator{
		embedder:  embedder,
		docs:      docs,
		keyword:   keyword,
		calc:      calc,
		ranker:    NewSimilarityRanker(),
		fusion:    NewFusionEngineWithK(cfg.RRFK),
		enricher:  enricher,
		filter:    NewContentLengthFilter(cfg.MinContentLength),
		formatter: NewResultFormatter(),
		metrics:   metrics,
		cfg:       cfg,
		matrices:  make(map[store.Category]*store.VectorMatrix),
		metadata:  make(map[store.Category]map[store.DocumentRef]store.DocumentMeta),
	}

	if graph != nil {
		planner, err := NewQueryExpansionPlanner(graph, cfg)
		if err != nil {
			return nil, err
		}
		c.planner = planner
	}

	for _, category := range []store.Category{store.CategoryArticle, store.CategoryCase} {
		if err := c.loadCategory(ctx, category); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *SearchCoordinator) loadCategory(ctx context.Context, category store.Category) error {
	matrix, err := c.docs.GetVectors(ctx, category)
	if err != nil {
		return err
	}
	metas, err := c.docs.GetMetadata(ctx, category)
	if err != nil {
		return err
	}
	byRef := make(map[store.DocumentRef]store.DocumentMeta, len(metas))
	for _, m := range metas {
		ref := store.DocumentRef{ID: m.ID, Category: category}.Normalized()
		byRef[ref] = m
	}
	c.matrices[category] = matrix
	c.metadata[category] = byRef

	slog.Info("category_loaded",
		slog.String("category", string(category)),
		slog.Int("documents", matrix.Len()))
	return nil
}

// MixedSearch satisfies a fixed article/case split: each category is
// retrieved, ranked, and filtered independently, running the two paths
// concurrently. When one category cannot fill its quota, the other may
// overflow so the total stays bounded by articlesCount+casesCount.
func (c *SearchCoordinator) MixedSearch(ctx context.Context, queryText string, articlesCount, casesCount int, includeContent bool) (*MixedResponse, error) {
	start := time.Now()
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, lexerrors.ValidationError("query text is empty", nil)
	}
	if articlesCount < 0 || casesCount < 0 || articlesCount+casesCount == 0 {
		return nil, lexerrors.ValidationError("requested counts must be positive", nil)
	}

	vector, err := c.calc.Encode(ctx, queryText)
	if err != nil {
		return nil, err
	}

	var articles, cases []EnrichedResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		articles, err = c.categoryPath(gctx, vector, store.CategoryArticle, articlesCount, includeContent)
		return err
	})
	g.Go(func() error {
		var err error
		cases, err = c.categoryPath(gctx, vector, store.CategoryCase, casesCount, includeContent)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	articles, cases = applyOverflow(articles, cases, articlesCount, casesCount)

	resp := &MixedResponse{
		Articles: make([]*ArticleResult, 0, len(articles)),
		Cases:    make([]*CaseResult, 0, len(cases)),
	}
	for _, r := range articles {
		if out := c.formatter.FormatArticle(r); out != nil {
			resp.Articles = append(resp.Articles, out)
		}
	}
	for _, r := range cases {
		if out := c.formatter.FormatCase(r); out != nil {
			resp.Cases = append(resp.Cases, out)
		}
	}

	c.record(telemetry.SearchEvent{
		Query:       queryText,
		Mode:        telemetry.ModeMixed,
		ResultCount: len(resp.Articles) + len(resp.Cases),
		Latency:     time.Since(start),
		Timestamp:   start,
	})
	return resp, nil
}

// categoryPath retrieves and ranks one category's candidates, keeping
// the full adequate surplus so the caller can backfill across
// categories. With includeContent it enriches and length-filters;
// without, it returns metadata-only results.
func (c *SearchCoordinator) categoryPath(ctx context.Context, vector []float32, category store.Category, count int, includeContent bool) ([]EnrichedResult, error) {
	if count == 0 {
		return nil, nil
	}
	surplus := count * candidateMultiplier
	candidates := c.semanticCandidates(vector, category, surplus)
	ranked := c.ranker.RankSingle(candidates)

	if !includeContent {
		out := make([]EnrichedResult, 0, len(ranked))
		for _, cand := range ranked {
			meta, ok := c.lookupMeta(cand.Doc)
			if !ok {
				continue
			}
			out = append(out, EnrichedResult{ScoredCandidate: cand, Meta: meta})
		}
		return out, nil
	}

	enriched, err := c.enrich(ctx, ranked)
	if err != nil {
		return nil, err
	}
	return c.filter.Filter(enriched, surplus), nil
}

// semanticCandidates runs top-k over a category's preloaded matrix.
func (c *SearchCoordinator) semanticCandidates(vector []float32, category store.Category, topK int) []ScoredCandidate {
	matrix := c.matrices[category]
	indices, sims := c.calc.TopK(vector, matrix, topK)
	out := make([]ScoredCandidate, 0, len(indices))
	for i, idx := range indices {
		ref := store.DocumentRef{ID: matrix.IDs[idx], Category: category}
		out = append(out, ScoredCandidate{
			Doc:        ref,
			Similarity: sims[i],
			SourcePath: SourceSemantic,
		})
	}
	return out
}

// enrich resolves bodies and attaches metadata.
func (c *SearchCoordinator) enrich(ctx context.Context, candidates []ScoredCandidate) ([]EnrichedResult, error) {
	enriched, err := c.enricher.Enrich(ctx, candidates)
	if err != nil {
		return nil, err
	}
	for i := range enriched {
		if meta, ok := c.lookupMeta(enriched[i].Doc); ok {
			enriched[i].Meta = meta
			enriched[i].Title = meta.Title
		}
	}
	return enriched, nil
}

func (c *SearchCoordinator) lookupMeta(ref store.DocumentRef) (store.DocumentMeta, bool) {
	byRef, ok := c.metadata[ref.Category]
	if !ok {
		return store.DocumentMeta{}, false
	}
	meta, ok := byRef[ref.Normalized()]
	return meta, ok
}

// HybridSearch fuses the semantic and keyword paths with RRF and, when
// a knowledge graph is configured, routes the query through the
// expansion pipeline. Keyword-path failures degrade to semantic-only.
func (c *SearchCoordinator) HybridSearch(ctx context.Context, queryText string, topK int) (*HybridResponse, error) {
	start := time.Now()
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, lexerrors.ValidationError("query text is empty", nil)
	}
	if topK <= 0 {
		return nil, lexerrors.ValidationError("topK must be positive", nil)
	}

	// Sub-queries run concurrently, so the semantic-only flag is atomic.
	var semanticOnly atomic.Bool
	retrieve := BaseRetrieverFunc(func(ctx context.Context, query string, k int) ([]ScoredCandidate, error) {
		candidates, pathFused, err := c.hybridCandidates(ctx, query, k)
		if err == nil && !pathFused {
			semanticOnly.Store(true)
		}
		return candidates, err
	})

	resp := &HybridResponse{}
	subQueries := 1
	if c.planner != nil {
		engine, err := NewKnowledgeEnhancedEngine(c.planner, retrieve, c.cfg)
		if err != nil {
			return nil, err
		}
		out, err := engine.Search(ctx, queryText, topK)
		if err != nil {
			return nil, err
		}
		resp.Enhanced = out.GraphUsed
		resp.Degraded = out.Degraded
		resp.Results = c.formatRecords(out.Records)
		subQueries = out.SubQueryCount
	} else {
		candidates, err := retrieve.Retrieve(ctx, queryText, topK)
		if err != nil {
			return nil, err
		}
		records := make([]*FusionRecord, 0, len(candidates))
		for _, cand := range candidates {
			records = append(records, &FusionRecord{
				Doc:             cand.Doc,
				TotalScore:      cand.Similarity,
				MaxSimilarity:   cand.Similarity,
				Sources:         []string{cand.SourcePath},
				AppearanceCount: 1,
				Best:            cand,
			})
		}
		resp.Results = c.formatRecords(records)
	}
	resp.Fused = !semanticOnly.Load()

	mode := telemetry.ModeHybrid
	if !resp.Fused {
		mode = telemetry.ModeSemanticOnly
	}
	c.record(telemetry.SearchEvent{
		Query:         queryText,
		Mode:          mode,
		ResultCount:   len(resp.Results),
		SubQueryCount: subQueries,
		GraphUsed:     resp.Enhanced,
		Degraded:      resp.Degraded,
		Latency:       time.Since(start),
		Timestamp:     start,
	})
	return resp, nil
}

// hybridCandidates runs the semantic and keyword paths for one query
// and fuses them. The second return is false when the ranking ended up
// semantic-only.
func (c *SearchCoordinator) hybridCandidates(ctx context.Context, queryText string, topK int) ([]ScoredCandidate, bool, error) {
	vector, err := c.calc.Encode(ctx, queryText)
	if err != nil {
		return nil, false, err
	}

	byCategory := map[store.Category][]ScoredCandidate{
		store.CategoryArticle: c.semanticCandidates(vector, store.CategoryArticle, topK),
		store.CategoryCase:    c.semanticCandidates(vector, store.CategoryCase, topK),
	}
	semantic := c.ranker.MergeMultiCategory(byCategory, 2*topK, StrategySimilarityPriority)

	if c.keyword == nil {
		return truncate(semantic, topK), false, nil
	}
	keywordHits, err := c.keyword.Search(ctx, queryText, topK)
	if err != nil {
		slog.Warn("keyword_path_failed, semantic-only ranking",
			slog.String("query", queryText),
			slog.String("error", err.Error()))
		return truncate(semantic, topK), false, nil
	}
	if len(keywordHits) == 0 {
		return truncate(semantic, topK), true, nil
	}

	fusedResults := c.fusion.Fuse(semantic, keywordHits, Weights{
		Semantic: c.cfg.SemanticWeight,
		Keyword:  c.cfg.KeywordWeight,
	})

	out := make([]ScoredCandidate, 0, topK)
	for _, fr := range fusedResults {
		if len(out) >= topK {
			break
		}
		source := SourceSemantic
		switch {
		case fr.InBothLists:
			source = SourceHybrid
		case fr.SemRank == 0:
			source = SourceKeyword
		}
		out = append(out, ScoredCandidate{
			Doc:        fr.Doc,
			Similarity: fr.RRFScore,
			SourcePath: source,
		})
	}
	return out, true, nil
}

func (c *SearchCoordinator) formatRecords(records []*FusionRecord) []*HybridResult {
	out := make([]*HybridResult, 0, len(records))
	for _, rec := range records {
		ref := rec.Doc.Normalized()
		title := ""
		if meta, ok := c.lookupMeta(ref); ok {
			title = meta.Title
		}
		out = append(out, &HybridResult{
			ID:          ref.ID,
			Category:    string(ref.Category),
			Title:       title,
			Similarity:  clampSimilarity(rec.MaxSimilarity),
			Sources:     rec.Sources,
			Appearances: rec.AppearanceCount,
			RareBoosted: rec.RareBoosted,
		})
	}
	return out
}

// LoadMoreCases pages through the case ranking: the same pipeline as
// MixedSearch's case path, sliced by offset/limit.
func (c *SearchCoordinator) LoadMoreCases(ctx context.Context, queryText string, offset, limit int) (*CasesPage, error) {
	start := time.Now()
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, lexerrors.ValidationError("query text is empty", nil)
	}
	if offset < 0 || limit <= 0 {
		return nil, lexerrors.ValidationError("offset must be >= 0 and limit positive", nil)
	}

	vector, err := c.calc.Encode(ctx, queryText)
	if err != nil {
		return nil, err
	}

	total := offset + limit
	candidates := c.semanticCandidates(vector, store.CategoryCase, total*candidateMultiplier)
	ranked := c.ranker.RankSingle(candidates)
	enriched, err := c.enrich(ctx, ranked)
	if err != nil {
		return nil, err
	}
	adequate := c.filter.Filter(enriched, len(enriched))

	page := &CasesPage{HasMore: len(adequate) > total}
	if offset < len(adequate) {
		end := offset + limit
		if end > len(adequate) {
			end = len(adequate)
		}
		for _, r := range adequate[offset:end] {
			if out := c.formatter.FormatCase(r); out != nil {
				page.Cases = append(page.Cases, out)
			}
		}
	}

	c.record(telemetry.SearchEvent{
		Query:       queryText,
		Mode:        telemetry.ModeMixed,
		ResultCount: len(page.Cases),
		Latency:     time.Since(start),
		Timestamp:   start,
	})
	return page, nil
}

func (c *SearchCoordinator) record(event telemetry.SearchEvent) {
	if c.metrics != nil {
		c.metrics.Record(event)
	}
}

// applyOverflow trims each category to its quota, letting one category
// borrow slots the other could not fill. The total stays bounded by
// the sum of the requested counts.
func applyOverflow(articles, cases []EnrichedResult, articlesCount, casesCount int) ([]EnrichedResult, []EnrichedResult) {
	articleTarget := articlesCount
	if len(articles) < articleTarget {
		articleTarget = len(articles)
	}
	caseTarget := casesCount
	if len(cases) < caseTarget {
		caseTarget = len(cases)
	}
	spareForCases := articlesCount - articleTarget
	spareForArticles := casesCount - caseTarget
	return truncateEnriched(articles, articlesCount+spareForArticles),
		truncateEnriched(cases, casesCount+spareForCases)
}

func truncate(candidates []ScoredCandidate, n int) []ScoredCandidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

func truncateEnriched(results []EnrichedResult, n int) []EnrichedResult {
	if len(results) > n {
		return results[:n]
	}
	return results
}
