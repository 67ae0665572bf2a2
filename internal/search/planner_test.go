package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfuse/lexfuse/internal/kg"
)

func plannerGraph() *kg.MemoryGraph {
	g := kg.NewMemoryGraph()
	g.AddRelation("故意伤害罪", 234, 0.95)
	g.AddRelation("故意伤害罪", 232, 0.4)
	g.AddRelation("盗窃罪", 264, 0.98)
	return g
}

func newTestPlanner(t *testing.T, cfg Config) *QueryExpansionPlanner {
	t.Helper()
	p, err := NewQueryExpansionPlanner(plannerGraph(), cfg)
	require.NoError(t, err)
	return p
}

func TestNewQueryExpansionPlanner_NilGraph(t *testing.T) {
	_, err := NewQueryExpansionPlanner(nil, DefaultConfig())
	require.Error(t, err)
}

func TestPlan_NoEntities(t *testing.T) {
	p := newTestPlanner(t, DefaultConfig())

	plan, err := p.Plan(context.Background(), "test")
	require.NoError(t, err)
	assert.False(t, plan.HasExpansions())
	assert.Equal(t, "test", plan.Original.Text)
	assert.Equal(t, SourceOriginal, plan.Original.Source)
	assert.InDelta(t, 0.5, plan.Original.Weight, 1e-9)
	assert.Len(t, plan.SubQueries(), 1)
}

func TestPlan_CrimeExpandsToArticles(t *testing.T) {
	p := newTestPlanner(t, DefaultConfig())

	plan, err := p.Plan(context.Background(), "故意伤害罪的量刑")
	require.NoError(t, err)
	require.True(t, plan.HasExpansions())
	require.Len(t, plan.Expansions, 2)

	// Highest-confidence relation comes first.
	assert.Equal(t, "第234条", plan.Expansions[0].Text)
	assert.InDelta(t, 0.3*0.95, plan.Expansions[0].Weight, 1e-9)
	assert.Equal(t, "第232条", plan.Expansions[1].Text)
	assert.InDelta(t, 0.3*0.4, plan.Expansions[1].Weight, 1e-9)
}

func TestPlan_ArticleExpandsToCrimes(t *testing.T) {
	p := newTestPlanner(t, DefaultConfig())

	plan, err := p.Plan(context.Background(), "第264条的案例")
	require.NoError(t, err)
	require.True(t, plan.HasExpansions())
	require.Len(t, plan.Expansions, 1)

	assert.Equal(t, "盗窃罪", plan.Expansions[0].Text)
	assert.InDelta(t, 0.2*0.98, plan.Expansions[0].Weight, 1e-9)
	assert.Equal(t, "related_crime:盗窃罪", plan.Expansions[0].Source)
}

func TestPlan_CapsAtMaxSubQueries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubQueries = 1
	p := newTestPlanner(t, cfg)

	plan, err := p.Plan(context.Background(), "故意伤害罪")
	require.NoError(t, err)
	assert.Len(t, plan.Expansions, 1)
	assert.Equal(t, "第234条", plan.Expansions[0].Text)
}

func TestPlan_EmptyQuery(t *testing.T) {
	p := newTestPlanner(t, DefaultConfig())

	plan, err := p.Plan(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, plan.HasExpansions())
}

func TestDedupeSubQueries(t *testing.T) {
	in := []SubQuery{
		{Text: "第234条", Weight: 0.2, Source: "a"},
		{Text: "第232条", Weight: 0.1, Source: "b"},
		{Text: "第234条", Weight: 0.3, Source: "c"},
	}
	out := dedupeSubQueries(in)
	require.Len(t, out, 2)
	assert.Equal(t, "第234条", out[0].Text)
	assert.InDelta(t, 0.3, out[0].Weight, 1e-9)
	assert.Equal(t, "第232条", out[1].Text)
}
