// Package store provides local persistence for legal documents: metadata,
// content, vectors, and the keyword index.
package store

import (
	"context"
)

// Category tags every document and result.
type Category string

const (
	CategoryArticle Category = "article"
	CategoryCase    Category = "case"
)

// Prefix returns the canonical ID prefix for the category.
func (c Category) Prefix() string {
	if c == CategoryArticle {
		return "law_"
	}
	return "case_"
}

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	return c == CategoryArticle || c == CategoryCase
}

// DocumentRef identifies a document. Equality must go through NormalizeID
// because upstream IDs vary in prefixing and zero-padding.
type DocumentRef struct {
	ID       string
	Category Category
}

// Normalized returns a ref with the canonical ID form.
func (r DocumentRef) Normalized() DocumentRef {
	return DocumentRef{ID: NormalizeID(r.ID, r.Category), Category: r.Category}
}

// DocumentMeta carries per-document fields. Articles use Chapter and
// ArticleNo; cases use the accusation and sentencing fields.
type DocumentMeta struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// Article fields.
	Chapter   string `json:"chapter,omitempty"`
	ArticleNo int    `json:"article_no,omitempty"`

	// Case fields.
	Accusations      []string `json:"accusations,omitempty"`
	RelevantArticles []int    `json:"relevant_articles,omitempty"`
	Criminals        []string `json:"criminals,omitempty"`
	PunishOfMoney    string   `json:"punish_of_money,omitempty"`
	Imprisonment     string   `json:"imprisonment,omitempty"`
}

// VectorMatrix holds a category's document vectors in row order aligned
// with IDs. Rows share one embedding dimension.
type VectorMatrix struct {
	IDs     []string
	Vectors [][]float32
}

// Len returns the number of rows.
func (m *VectorMatrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Vectors)
}

// DocumentStore provides read access to persisted documents.
type DocumentStore interface {
	// GetVectors returns the full vector matrix for a category.
	GetVectors(ctx context.Context, category Category) (*VectorMatrix, error)

	// GetMetadata returns all metadata records for a category, in the
	// same row order as GetVectors.
	GetMetadata(ctx context.Context, category Category) ([]DocumentMeta, error)

	// GetContent returns a document body by exact ID. Returns "" with a
	// nil error when the document is absent.
	GetContent(ctx context.Context, category Category, id string) (string, error)

	// Close releases resources.
	Close() error
}

// KeywordResult is one hit from the keyword index.
type KeywordResult struct {
	Ref   DocumentRef
	Score float64
}

// KeywordIndex provides BM25-style keyword retrieval. May be absent at
// runtime (feature flag off); callers degrade to semantic-only ranking.
type KeywordIndex interface {
	// Search returns document refs ordered by relevance.
	Search(ctx context.Context, text string, topK int) ([]KeywordResult, error)

	// Index adds or replaces documents.
	Index(ctx context.Context, category Category, docs []IndexDoc) error

	// Close releases resources.
	Close() error
}

// IndexDoc is a document submitted for keyword indexing.
type IndexDoc struct {
	ID      string
	Title   string
	Content string
}
