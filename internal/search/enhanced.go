package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
	"github.com/lexfuse/lexfuse/internal/store"
)

// Boost multiplier tiers keyed by candidate pool size. Small pools get
// aggressive boosts so legitimately sparse matches are not under-ranked.
const (
	boostTierTiny   = 2.5 // pool <= 3
	boostTierSmall  = 1.8 // pool <= 10
	boostTierMedium = 1.3 // pool <= 50
	boostTierLarge  = 1.1
)

// minSubQueryBudget is the floor for the per-sub-query top-k share.
const minSubQueryBudget = 5

// BaseRetriever executes one retrieval pass for a single query text,
// returning scored candidates across categories. Implemented by the
// coordinator's vector path.
type BaseRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredCandidate, error)
}

// BaseRetrieverFunc adapts a function to BaseRetriever.
type BaseRetrieverFunc func(ctx context.Context, query string, topK int) ([]ScoredCandidate, error)

func (f BaseRetrieverFunc) Retrieve(ctx context.Context, query string, topK int) ([]ScoredCandidate, error) {
	return f(ctx, query, topK)
}

// EnhancedOutput is the result of a knowledge-enhanced search, annotated
// for observability.
type EnhancedOutput struct {
	Records []*FusionRecord
	// Degraded is set when the knowledge graph or part of the fan-out
	// failed and the output fell back to fewer paths than planned.
	Degraded      bool
	GraphUsed     bool
	SubQueryCount int
}

// KnowledgeEnhancedEngine runs the expansion pipeline:
// plan sub-queries, fan out base retrievals, accumulate weighted scores,
// apply the adaptive rare-content boost, and balance categories.
type KnowledgeEnhancedEngine struct {
	planner *QueryExpansionPlanner
	base    BaseRetriever
	cfg     Config
}

// NewKnowledgeEnhancedEngine creates the engine. A nil planner disables
// expansion entirely: every search delegates to the base path.
func NewKnowledgeEnhancedEngine(planner *QueryExpansionPlanner, base BaseRetriever, cfg Config) (*KnowledgeEnhancedEngine, error) {
	if base == nil {
		return nil, lexerrors.InternalError("enhanced engine requires a base retriever", nil)
	}
	cfg.applyDefaults()
	return &KnowledgeEnhancedEngine{planner: planner, base: base, cfg: cfg}, nil
}

// Search runs the full pipeline for one query. Knowledge-graph failures
// degrade silently to the base retrieval path; partial fan-out failures
// proceed with whatever sub-queries completed.
func (e *KnowledgeEnhancedEngine) Search(ctx context.Context, query string, topK int) (*EnhancedOutput, error) {
	if topK <= 0 {
		return &EnhancedOutput{}, nil
	}

	if e.planner == nil {
		return e.baseOnly(ctx, query, topK, false)
	}

	plan, err := e.planner.Plan(ctx, query)
	if err != nil {
		slog.Warn("expansion_plan_failed, falling back to base retrieval",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return e.baseOnly(ctx, query, topK, true)
	}
	if !plan.HasExpansions() {
		return e.baseOnly(ctx, query, topK, false)
	}

	deadline, cancel := context.WithTimeout(ctx, e.cfg.EnhanceTimeout)
	defer cancel()

	subs := plan.SubQueries()
	results, hardFailures, timeouts := e.fanout(deadline, subs, subQueryBudget(topK))
	if hardFailures > 0 {
		// A failed sub-query would skew the fused scores, so the whole
		// query falls back rather than returning an inconsistent mix.
		slog.Warn("sub_query_failure, falling back to base retrieval",
			slog.String("query", query),
			slog.Int("failed", hardFailures))
		return e.baseOnly(ctx, query, topK, true)
	}
	if timeouts == len(subs) {
		slog.Warn("all sub-queries timed out, falling back to base retrieval",
			slog.String("query", query))
		return e.baseOnly(ctx, query, topK, true)
	}

	records := e.accumulate(subs, results)
	e.boost(records)
	final := e.diversify(records, topK)

	slog.Debug("enhanced_search_done",
		slog.String("query", query),
		slog.Int("sub_queries", len(subs)),
		slog.Int("timed_out", timeouts),
		slog.Int("pool", len(records)),
		slog.Int("returned", len(final)))

	return &EnhancedOutput{
		Records:       final,
		Degraded:      timeouts > 0,
		GraphUsed:     true,
		SubQueryCount: len(subs),
	}, nil
}

// baseOnly delegates to the base retrieval path and wraps its candidates
// as unboosted records so the output shape matches the enhanced path.
func (e *KnowledgeEnhancedEngine) baseOnly(ctx context.Context, query string, topK int, degraded bool) (*EnhancedOutput, error) {
	candidates, err := e.base.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	records := make([]*FusionRecord, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, &FusionRecord{
			Doc:             c.Doc,
			TotalScore:      c.Similarity,
			MaxSimilarity:   c.Similarity,
			Sources:         []string{SourceOriginal},
			AppearanceCount: 1,
			Best:            c,
		})
	}
	return &EnhancedOutput{
		Records:       records,
		Degraded:      degraded,
		SubQueryCount: 1,
	}, nil
}

// fanout runs every sub-query concurrently with bounded parallelism.
// Results are positional so accumulation stays deterministic. Deadline
// expirations are counted separately from hard failures: a timed-out
// path can be dropped, a failed one poisons the fusion.
func (e *KnowledgeEnhancedEngine) fanout(ctx context.Context, subs []SubQuery, budget int) (results [][]ScoredCandidate, hardFailures, timeouts int) {
	results = make([][]ScoredCandidate, len(subs))
	errs := make([]error, len(subs))

	var g errgroup.Group
	sem := make(chan struct{}, e.cfg.Parallelism)

	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return nil
			}

			candidates, err := e.base.Retrieve(ctx, sub.Text, budget)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			timeouts++
		} else {
			hardFailures++
		}
		slog.Warn("sub_query_failed",
			slog.String("sub_query", subs[i].Text),
			slog.String("source", subs[i].Source),
			slog.String("error", err.Error()))
	}
	return results, hardFailures, timeouts
}

// accumulate folds every sub-query's candidates into FusionRecords keyed
// by normalized document ref. Score addition is commutative, but the
// iteration order is fixed so sources lists come out deterministic.
func (e *KnowledgeEnhancedEngine) accumulate(subs []SubQuery, results [][]ScoredCandidate) map[store.DocumentRef]*FusionRecord {
	records := make(map[store.DocumentRef]*FusionRecord)
	for i, sub := range subs {
		for _, c := range results[i] {
			key := c.Doc.Normalized()
			rec, ok := records[key]
			if !ok {
				rec = &FusionRecord{Doc: key, Best: c}
				records[key] = rec
			}
			rec.TotalScore += c.Similarity * sub.Weight
			rec.AppearanceCount++
			rec.Sources = append(rec.Sources, sub.Source)
			if c.Similarity > rec.MaxSimilarity {
				rec.MaxSimilarity = c.Similarity
				rec.Best = c
			}
		}
	}
	return records
}

// boost applies the adaptive rare-content boost in place. The tier
// depends on the pool size; the per-record multiplier is modulated by
// the record's own score and capped relative to the pool maximum.
func (e *KnowledgeEnhancedEngine) boost(records map[store.DocumentRef]*FusionRecord) {
	n := len(records)
	if n == 0 {
		return
	}
	tier := boostTier(n)

	var maxScore float64
	for _, rec := range records {
		if rec.TotalScore > maxScore {
			maxScore = rec.TotalScore
		}
	}
	ceiling := e.cfg.BoostCapFactor * maxScore

	for _, rec := range records {
		if !e.qualifies(rec, n, tier) {
			continue
		}
		mult := modulateBoost(tier, rec.TotalScore)
		if mult <= 1.0 {
			continue
		}
		boosted := rec.TotalScore * mult
		if boosted > ceiling {
			boosted = ceiling
		}
		if boosted > rec.TotalScore {
			rec.TotalScore = boosted
			rec.RareBoosted = true
		}
	}
}

// qualifies reports whether a record participates in boosting: small
// pools always do, mid-size pools need a minimum score, and anything
// seen on the original query path is always eligible.
func (e *KnowledgeEnhancedEngine) qualifies(rec *FusionRecord, n int, tier float64) bool {
	if n <= 10 {
		return true
	}
	if rec.TotalScore >= 0.1*tier && n <= 50 {
		return true
	}
	for _, src := range rec.Sources {
		if src == SourceOriginal {
			return true
		}
	}
	return false
}

func boostTier(n int) float64 {
	switch {
	case n <= 3:
		return boostTierTiny
	case n <= 10:
		return boostTierSmall
	case n <= 50:
		return boostTierMedium
	default:
		return boostTierLarge
	}
}

// modulateBoost scales the tier multiplier by how weak the record's
// current score is: very weak scores get amplified further, while
// already-strong scores are held near neutral.
func modulateBoost(tier, score float64) float64 {
	switch {
	case score < 0.1:
		return tier * 1.5
	case score < 0.3:
		return tier
	default:
		if tier < 1.2 {
			return tier
		}
		return 1.2
	}
}

// diversify sorts the records and walks them into a category-balanced
// top-k: each category is capped at ceil(topK/2), with overflow allowed
// only when the output would otherwise come up short.
func (e *KnowledgeEnhancedEngine) diversify(records map[store.DocumentRef]*FusionRecord, topK int) []*FusionRecord {
	sorted := make([]*FusionRecord, 0, len(records))
	for _, rec := range records {
		sorted = append(sorted, rec)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.AppearanceCount != b.AppearanceCount {
			return a.AppearanceCount > b.AppearanceCount
		}
		if a.MaxSimilarity != b.MaxSimilarity {
			return a.MaxSimilarity > b.MaxSimilarity
		}
		return a.Doc.ID < b.Doc.ID
	})

	perCategory := (topK + 1) / 2
	counts := make(map[store.Category]int)
	out := make([]*FusionRecord, 0, topK)
	var skipped []*FusionRecord

	for _, rec := range sorted {
		if len(out) >= topK {
			break
		}
		if counts[rec.Doc.Category] >= perCategory {
			skipped = append(skipped, rec)
			continue
		}
		out = append(out, rec)
		counts[rec.Doc.Category]++
	}
	for _, rec := range skipped {
		if len(out) >= topK {
			break
		}
		out = append(out, rec)
	}
	return out
}

// subQueryBudget divides the requested top-k across sub-query paths,
// never dropping below the floor.
func subQueryBudget(topK int) int {
	budget := topK / 3
	if budget < minSubQueryBudget {
		budget = minSubQueryBudget
	}
	return budget
}
