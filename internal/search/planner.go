package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
	"github.com/lexfuse/lexfuse/internal/kg"
)

// SubQuery is one weighted retrieval pass of an expansion plan.
type SubQuery struct {
	Text   string
	Weight float64
	// Source labels the path for FusionRecord observability, e.g.
	// "original", "related_article:234", "related_crime:盗窃罪".
	Source string
}

// ExpansionPlan is the weighted set of sub-queries for one search.
// Immutable after Plan returns.
type ExpansionPlan struct {
	Original   SubQuery
	Expansions []SubQuery
}

// HasExpansions reports whether the plan goes beyond the original query.
// Callers skip the enhancement pipeline entirely when false.
func (p *ExpansionPlan) HasExpansions() bool {
	return len(p.Expansions) > 0
}

// SubQueries returns the original followed by every expansion.
func (p *ExpansionPlan) SubQueries() []SubQuery {
	out := make([]SubQuery, 0, 1+len(p.Expansions))
	out = append(out, p.Original)
	out = append(out, p.Expansions...)
	return out
}

// QueryExpansionPlanner builds expansion plans from knowledge-graph
// entity detection.
type QueryExpansionPlanner struct {
	graph kg.KnowledgeGraph

	originalWeight       float64
	relatedArticleWeight float64
	relatedCrimeWeight   float64
	maxSubQueries        int
	kgTopK               int
}

// NewQueryExpansionPlanner creates a planner. The graph may not be nil;
// callers without a graph skip planning.
func NewQueryExpansionPlanner(graph kg.KnowledgeGraph, cfg Config) (*QueryExpansionPlanner, error) {
	if graph == nil {
		return nil, lexerrors.InternalError("expansion planner requires a knowledge graph", nil)
	}
	cfg.applyDefaults()
	return &QueryExpansionPlanner{
		graph:                graph,
		originalWeight:       cfg.OriginalWeight,
		relatedArticleWeight: cfg.RelatedArticleWeight,
		relatedCrimeWeight:   cfg.RelatedCrimeWeight,
		maxSubQueries:        cfg.MaxSubQueries,
		kgTopK:               cfg.KGTopK,
	}, nil
}

// Plan detects legal entities in the query and produces the weighted
// sub-query plan. A query with no detected entities yields a plan with
// only the original query.
func (p *QueryExpansionPlanner) Plan(ctx context.Context, query string) (*ExpansionPlan, error) {
	plan := &ExpansionPlan{
		Original: SubQuery{Text: query, Weight: p.originalWeight, Source: SourceOriginal},
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return plan, nil
	}

	entities, err := p.graph.DetectEntities(ctx, query)
	if err != nil {
		return nil, lexerrors.KnowledgeGraphError("detecting entities", err)
	}
	if entities.Empty() {
		return plan, nil
	}

	for _, crime := range entities.Crimes {
		related, err := p.graph.RelatedArticles(ctx, crime, p.kgTopK)
		if err != nil {
			return nil, lexerrors.KnowledgeGraphError(
				fmt.Sprintf("looking up articles for %s", crime), err)
		}
		for _, ra := range related {
			plan.Expansions = append(plan.Expansions, SubQuery{
				Text:   fmt.Sprintf("第%d条", ra.ArticleNo),
				Weight: p.relatedArticleWeight * clampConfidence(ra.Confidence),
				Source: fmt.Sprintf("related_article:%d", ra.ArticleNo),
			})
		}
	}

	for _, articleNo := range entities.Articles {
		related, err := p.graph.RelatedCrimes(ctx, articleNo, p.kgTopK)
		if err != nil {
			return nil, lexerrors.KnowledgeGraphError(
				fmt.Sprintf("looking up crimes for article %d", articleNo), err)
		}
		for _, rc := range related {
			plan.Expansions = append(plan.Expansions, SubQuery{
				Text:   rc.Crime,
				Weight: p.relatedCrimeWeight * clampConfidence(rc.Confidence),
				Source: "related_crime:" + rc.Crime,
			})
		}
	}

	plan.Expansions = dedupeSubQueries(plan.Expansions)
	if len(plan.Expansions) > p.maxSubQueries {
		plan.Expansions = plan.Expansions[:p.maxSubQueries]
	}

	slog.Debug("expansion_plan_built",
		slog.String("query", query),
		slog.Int("crimes", len(entities.Crimes)),
		slog.Int("articles", len(entities.Articles)),
		slog.Int("expansions", len(plan.Expansions)))

	return plan, nil
}

// dedupeSubQueries keeps the highest-weight sub-query per text, order
// preserved.
func dedupeSubQueries(subs []SubQuery) []SubQuery {
	best := make(map[string]int, len(subs))
	var out []SubQuery
	for _, sq := range subs {
		if idx, ok := best[sq.Text]; ok {
			if sq.Weight > out[idx].Weight {
				out[idx] = sq
			}
			continue
		}
		best[sq.Text] = len(out)
		out = append(out, sq)
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
