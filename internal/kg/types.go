// Package kg provides the legal knowledge graph boundary: entity
// detection in query text and crime/article relation lookups.
package kg

import (
	"context"
)

// Entities are the legal entities detected in a query.
type Entities struct {
	Crimes   []string
	Articles []int
}

// Empty reports whether no entities were detected.
func (e Entities) Empty() bool {
	return len(e.Crimes) == 0 && len(e.Articles) == 0
}

// RelatedArticle is an article related to a crime, with association
// confidence in [0,1].
type RelatedArticle struct {
	ArticleNo  int
	Confidence float64
}

// RelatedCrime is a crime related to an article, with association
// confidence in [0,1].
type RelatedCrime struct {
	Crime      string
	Confidence float64
}

// KnowledgeGraph maps crime names to article numbers and back. May be
// unavailable at runtime; callers degrade to base retrieval.
type KnowledgeGraph interface {
	// DetectEntities finds crime names and article numbers literally
	// present in the text.
	DetectEntities(ctx context.Context, text string) (Entities, error)

	// RelatedArticles returns the top articles associated with a crime.
	RelatedArticles(ctx context.Context, crime string, topK int) ([]RelatedArticle, error)

	// RelatedCrimes returns the top crimes associated with an article.
	RelatedCrimes(ctx context.Context, articleNo int, topK int) ([]RelatedCrime, error)

	// Close releases resources.
	Close(ctx context.Context) error
}
