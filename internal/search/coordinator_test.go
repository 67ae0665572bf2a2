package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfuse/lexfuse/internal/embed"
	"github.com/lexfuse/lexfuse/internal/kg"
	"github.com/lexfuse/lexfuse/internal/store"
	"github.com/lexfuse/lexfuse/internal/telemetry"
)

var testArticles = []struct {
	id      string
	title   string
	no      int
	content string
}{
	{"232", "故意杀人罪", 232, "故意杀人的，处死刑、无期徒刑或者十年以上有期徒刑；情节较轻的，处三年以上十年以下有期徒刑。"},
	{"234", "故意伤害罪", 234, "故意伤害他人身体的，处三年以下有期徒刑、拘役或者管制。致人重伤的，处三年以上十年以下有期徒刑。"},
	{"263", "抢劫罪", 263, "以暴力、胁迫或者其他方法抢劫公私财物的，处三年以上十年以下有期徒刑，并处罚金。"},
	{"264", "盗窃罪", 264, "盗窃公私财物，数额较大的，或者多次盗窃、入户盗窃的，处三年以下有期徒刑、拘役或者管制。"},
	{"266", "诈骗罪", 266, "诈骗公私财物，数额较大的，处三年以下有期徒刑、拘役或者管制，并处或者单处罚金。"},
	{"267", "抢夺罪", 267, "抢夺公私财物，数额较大的，或者多次抢夺的，处三年以下有期徒刑、拘役或者管制。"},
	{"133", "交通肇事罪", 133, "违反交通运输管理法规，因而发生重大事故，致人重伤、死亡的，处三年以下有期徒刑或者拘役。"},
}

var testCases = []struct {
	id         string
	accusation string
	article    int
	content    string
}{
	{"1", "故意伤害", 234, "被告人张某某与被害人发生口角后持械故意伤害他人身体，致被害人轻伤二级，判处有期徒刑一年。"},
	{"2", "故意伤害", 234, "被告人李某某酒后滋事，故意伤害他人致重伤，依照刑法第二百三十四条判处有期徒刑四年。"},
	{"3", "故意伤害", 234, "被告人王某某因邻里纠纷故意伤害被害人身体，致其轻伤，自愿认罪认罚，判处拘役五个月。"},
	{"4", "故意杀人", 232, "被告人赵某某因感情纠纷持刀故意杀人，致被害人死亡，判处无期徒刑，剥夺政治权利终身。"},
	{"5", "盗窃", 264, "被告人孙某某多次入户盗窃公私财物，数额较大，判处有期徒刑八个月，并处罚金人民币二千元。"},
	{"6", "盗窃", 264, "被告人周某某在商场扒窃他人财物，数额较大，系累犯，判处有期徒刑十个月，并处罚金。"},
	{"7", "抢劫", 263, "被告人吴某某伙同他人持刀抢劫出租车司机财物，判处有期徒刑五年，并处罚金人民币五千元。"},
	{"8", "诈骗", 266, "被告人郑某某虚构事实骗取多名被害人钱款共计十万余元，判处有期徒刑三年，并处罚金。"},
	{"9", "故意伤害", 234, "被告人陈某某在工地与工友斗殴故意伤害对方身体，致轻伤一级，赔偿损失后获得谅解。"},
	{"10", "交通肇事", 133, "被告人刘某某酒后驾驶机动车发生重大交通事故致一人死亡，负事故全部责任，判处有期徒刑二年。"},
}

func seedStore(t *testing.T, embedder embed.Embedder) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()

	articles := make([]store.Document, 0, len(testArticles))
	for _, a := range testArticles {
		vec, err := embedder.Embed(ctx, a.title+" "+a.content)
		require.NoError(t, err)
		articles = append(articles, store.Document{
			Meta:    store.DocumentMeta{ID: a.id, Title: a.title, ArticleNo: a.no},
			Content: a.content,
			Vector:  vec,
		})
	}
	require.NoError(t, s.PutDocuments(ctx, store.CategoryArticle, articles))

	cases := make([]store.Document, 0, len(testCases))
	for _, c := range testCases {
		vec, err := embedder.Embed(ctx, c.accusation+" "+c.content)
		require.NoError(t, err)
		cases = append(cases, store.Document{
			Meta: store.DocumentMeta{
				ID:               c.id,
				Accusations:      []string{c.accusation},
				RelevantArticles: []int{c.article},
			},
			Content: c.content,
			Vector:  vec,
		})
	}
	require.NoError(t, s.PutDocuments(ctx, store.CategoryCase, cases))
	return s
}

func seedKeywordIndex(t *testing.T) *store.BleveKeywordIndex {
	t.Helper()
	idx, err := store.NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	ctx := context.Background()
	var articleDocs []store.IndexDoc
	for _, a := range testArticles {
		articleDocs = append(articleDocs, store.IndexDoc{ID: a.id, Title: a.title, Content: a.content})
	}
	require.NoError(t, idx.Index(ctx, store.CategoryArticle, articleDocs))

	var caseDocs []store.IndexDoc
	for _, c := range testCases {
		caseDocs = append(caseDocs, store.IndexDoc{ID: c.id, Title: c.accusation, Content: c.content})
	}
	require.NoError(t, idx.Index(ctx, store.CategoryCase, caseDocs))
	return idx
}

func testGraph() *kg.MemoryGraph {
	g := kg.NewMemoryGraph()
	g.AddRelation("故意伤害罪", 234, 0.95)
	g.AddRelation("故意杀人罪", 232, 0.9)
	g.AddRelation("盗窃罪", 264, 0.98)
	return g
}

func newTestCoordinator(t *testing.T, keyword store.KeywordIndex, graph kg.KnowledgeGraph) *SearchCoordinator {
	t.Helper()
	embedder := embed.NewStaticEmbedder()
	docs := seedStore(t, embedder)
	c, err := NewSearchCoordinator(
		context.Background(), embedder, docs, keyword, graph,
		telemetry.NewSearchMetrics(), DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestMixedSearch_EndToEnd(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	resp, err := c.MixedSearch(context.Background(), "故意伤害", 5, 5, true)
	require.NoError(t, err)

	require.Len(t, resp.Articles, 5)
	require.Len(t, resp.Cases, 5)

	for i, a := range resp.Articles {
		assert.True(t, a.Similarity >= 0 && a.Similarity <= 1, "article %d similarity out of range", i)
		assert.NotEmpty(t, a.Content)
		if i > 0 {
			assert.True(t, resp.Articles[i-1].Similarity >= a.Similarity, "articles not descending at %d", i)
		}
	}
	for i, cs := range resp.Cases {
		assert.True(t, cs.Similarity >= 0 && cs.Similarity <= 1, "case %d similarity out of range", i)
		assert.NotEmpty(t, cs.Content)
		if i > 0 {
			assert.True(t, resp.Cases[i-1].Similarity >= cs.Similarity, "cases not descending at %d", i)
		}
	}

	// The assault article should surface for an assault query.
	ids := make([]string, 0, 5)
	for _, a := range resp.Articles {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, "law_000234")
}

func TestMixedSearch_DiversityCap(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	resp, err := c.MixedSearch(context.Background(), "故意伤害", 5, 5, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Articles), 5)
	assert.LessOrEqual(t, len(resp.Cases), 5)
	assert.LessOrEqual(t, len(resp.Articles)+len(resp.Cases), 10)
}

func TestMixedSearch_MetadataOnly(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	resp, err := c.MixedSearch(context.Background(), "盗窃", 3, 3, false)
	require.NoError(t, err)
	require.Len(t, resp.Articles, 3)
	require.Len(t, resp.Cases, 3)
	for _, a := range resp.Articles {
		assert.Empty(t, a.Content)
		assert.NotEmpty(t, a.Title)
	}
	for _, cs := range resp.Cases {
		assert.Empty(t, cs.Content)
	}
}

func TestMixedSearch_Validation(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	_, err := c.MixedSearch(context.Background(), "   ", 5, 5, true)
	require.Error(t, err)

	_, err = c.MixedSearch(context.Background(), "盗窃", 0, 0, true)
	require.Error(t, err)

	_, err = c.MixedSearch(context.Background(), "盗窃", -1, 5, true)
	require.Error(t, err)
}

func TestMixedSearch_SingleCategory(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	resp, err := c.MixedSearch(context.Background(), "盗窃", 0, 4, true)
	require.NoError(t, err)
	assert.Empty(t, resp.Articles)
	assert.Len(t, resp.Cases, 4)
}

func TestHybridSearch_Fused(t *testing.T) {
	c := newTestCoordinator(t, seedKeywordIndex(t), nil)

	resp, err := c.HybridSearch(context.Background(), "盗窃", 6)
	require.NoError(t, err)
	assert.True(t, resp.Fused)
	assert.False(t, resp.Enhanced)
	require.NotEmpty(t, resp.Results)
	assert.LessOrEqual(t, len(resp.Results), 6)

	for i := 1; i < len(resp.Results); i++ {
		assert.True(t, resp.Results[i-1].Similarity >= 0)
	}
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "law_000264")
}

func TestHybridSearch_SemanticOnlyWithoutKeywordIndex(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	resp, err := c.HybridSearch(context.Background(), "盗窃", 5)
	require.NoError(t, err)
	assert.False(t, resp.Fused)
	assert.NotEmpty(t, resp.Results)
}

func TestHybridSearch_Enhanced(t *testing.T) {
	c := newTestCoordinator(t, seedKeywordIndex(t), testGraph())

	resp, err := c.HybridSearch(context.Background(), "盗窃罪的量刑", 6)
	require.NoError(t, err)
	assert.True(t, resp.Enhanced)
	assert.NotEmpty(t, resp.Results)

	// Expansion paths are visible in the provenance.
	foundMultiPath := false
	for _, r := range resp.Results {
		if r.Appearances > 1 {
			foundMultiPath = true
		}
	}
	assert.True(t, foundMultiPath)
}

func TestHybridSearch_RecordsSubQueryCount(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	docs := seedStore(t, embedder)
	metrics := telemetry.NewSearchMetrics()
	c, err := NewSearchCoordinator(
		context.Background(), embedder, docs, seedKeywordIndex(t), testGraph(),
		metrics, DefaultConfig())
	require.NoError(t, err)

	// The enhanced path fans out original + expansion.
	_, err = c.HybridSearch(context.Background(), "盗窃罪的量刑", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(2), metrics.Snapshot().SubQueryCount)

	// The unexpanded path counts a single sub-query.
	_, err = c.HybridSearch(context.Background(), "test", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), metrics.Snapshot().SubQueryCount)
}

func TestHybridSearch_NoEntitiesNotDegraded(t *testing.T) {
	c := newTestCoordinator(t, seedKeywordIndex(t), testGraph())

	resp, err := c.HybridSearch(context.Background(), "test", 5)
	require.NoError(t, err)
	assert.False(t, resp.Enhanced)
	assert.False(t, resp.Degraded)
	for _, r := range resp.Results {
		assert.False(t, r.RareBoosted)
	}
}

func TestLoadMoreCases_Pagination(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	first, err := c.LoadMoreCases(context.Background(), "故意伤害", 0, 3)
	require.NoError(t, err)
	require.Len(t, first.Cases, 3)
	assert.True(t, first.HasMore)

	second, err := c.LoadMoreCases(context.Background(), "故意伤害", 3, 3)
	require.NoError(t, err)
	require.NotEmpty(t, second.Cases)

	seen := make(map[string]bool)
	for _, cs := range first.Cases {
		seen[cs.ID] = true
	}
	for _, cs := range second.Cases {
		assert.False(t, seen[cs.ID], "page overlap on %s", cs.ID)
	}
}

func TestLoadMoreCases_PastEnd(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	page, err := c.LoadMoreCases(context.Background(), "故意伤害", 100, 5)
	require.NoError(t, err)
	assert.Empty(t, page.Cases)
	assert.False(t, page.HasMore)
}

func TestLoadMoreCases_Validation(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	_, err := c.LoadMoreCases(context.Background(), "", 0, 5)
	require.Error(t, err)
	_, err = c.LoadMoreCases(context.Background(), "盗窃", -1, 5)
	require.Error(t, err)
	_, err = c.LoadMoreCases(context.Background(), "盗窃", 0, 0)
	require.Error(t, err)
}

func TestMixedSearch_BackfillShortContent(t *testing.T) {
	embedder := embed.NewStaticEmbedder()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	long := "被告人某某某故意伤害他人身体致轻伤，自愿认罪认罚，依法判处有期徒刑若干。"
	docs := make([]store.Document, 0, 8)
	for i := 0; i < 8; i++ {
		content := long
		if i == 0 {
			// The top match has no usable body and must be dropped.
			content = "短"
		}
		vec, err := embedder.Embed(ctx, fmt.Sprintf("故意伤害 案例%d %s", i, content))
		require.NoError(t, err)
		docs = append(docs, store.Document{
			Meta:    store.DocumentMeta{ID: fmt.Sprintf("%d", i+1), Accusations: []string{"故意伤害"}},
			Content: content,
			Vector:  vec,
		})
	}
	require.NoError(t, s.PutDocuments(ctx, store.CategoryCase, docs))
	require.NoError(t, s.PutDocuments(ctx, store.CategoryArticle, nil))

	c, err := NewSearchCoordinator(ctx, embedder, s, nil, nil,
		telemetry.NewSearchMetrics(), DefaultConfig())
	require.NoError(t, err)

	resp, err := c.MixedSearch(ctx, "故意伤害", 0, 4, true)
	require.NoError(t, err)
	require.Len(t, resp.Cases, 4)
	for _, cs := range resp.Cases {
		assert.NotEqual(t, "短", cs.Content)
	}
}
