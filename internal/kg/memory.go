package kg

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryGraph is an in-process KnowledgeGraph backed by maps. Used in
// tests and offline operation.
type MemoryGraph struct {
	mu sync.RWMutex

	// crimeArticles maps crime name to related articles.
	crimeArticles map[string][]RelatedArticle
	// articleCrimes maps article number to related crimes.
	articleCrimes map[int][]RelatedCrime
}

var _ KnowledgeGraph = (*MemoryGraph)(nil)

// NewMemoryGraph creates an empty in-memory graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		crimeArticles: make(map[string][]RelatedArticle),
		articleCrimes: make(map[int][]RelatedCrime),
	}
}

// AddRelation records a crime-article association in both directions.
func (g *MemoryGraph) AddRelation(crime string, articleNo int, confidence float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.crimeArticles[crime] = append(g.crimeArticles[crime],
		RelatedArticle{ArticleNo: articleNo, Confidence: confidence})
	g.articleCrimes[articleNo] = append(g.articleCrimes[articleNo],
		RelatedCrime{Crime: crime, Confidence: confidence})
}

// DetectEntities finds known crime names contained in the text and
// statute references whose article exists in the graph.
func (g *MemoryGraph) DetectEntities(ctx context.Context, text string) (Entities, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var entities Entities
	for crime := range g.crimeArticles {
		if strings.Contains(text, crime) {
			entities.Crimes = append(entities.Crimes, crime)
		}
	}
	sort.Strings(entities.Crimes)

	for _, n := range parseArticleNumbers(text) {
		if _, ok := g.articleCrimes[n]; ok {
			entities.Articles = append(entities.Articles, n)
		}
	}
	return entities, nil
}

// RelatedArticles returns the top articles for a crime by confidence.
func (g *MemoryGraph) RelatedArticles(ctx context.Context, crime string, topK int) ([]RelatedArticle, error) {
	if topK <= 0 {
		return nil, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	related := make([]RelatedArticle, len(g.crimeArticles[crime]))
	copy(related, g.crimeArticles[crime])
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Confidence > related[j].Confidence
	})
	if len(related) > topK {
		related = related[:topK]
	}
	return related, nil
}

// RelatedCrimes returns the top crimes for an article by confidence.
func (g *MemoryGraph) RelatedCrimes(ctx context.Context, articleNo int, topK int) ([]RelatedCrime, error) {
	if topK <= 0 {
		return nil, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	related := make([]RelatedCrime, len(g.articleCrimes[articleNo]))
	copy(related, g.articleCrimes[articleNo])
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Confidence > related[j].Confidence
	})
	if len(related) > topK {
		related = related[:topK]
	}
	return related, nil
}

// Close is a no-op.
func (g *MemoryGraph) Close(ctx context.Context) error {
	return nil
}
