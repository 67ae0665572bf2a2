package search

import (
	"fmt"
	"strings"

	"github.com/lexfuse/lexfuse/internal/store"
)

// ArticleResult is the public shape of a law-article hit.
type ArticleResult struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Chapter    string  `json:"chapter,omitempty"`
	ArticleNo  int     `json:"article_no,omitempty"`
	Content    string  `json:"content,omitempty"`
	Similarity float64 `json:"similarity"`
}

// CaseResult is the public shape of a case hit.
type CaseResult struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Accusations      []string `json:"accusations,omitempty"`
	RelevantArticles []int    `json:"relevant_articles,omitempty"`
	Criminals        []string `json:"criminals,omitempty"`
	PunishOfMoney    string   `json:"punish_of_money,omitempty"`
	Imprisonment     string   `json:"imprisonment,omitempty"`
	Content          string   `json:"content,omitempty"`
	Similarity       float64  `json:"similarity"`
}

// ResultFormatter maps enriched results to the public shapes. Pure
// mapping, no I/O; missing fields are omitted rather than failing the
// whole result.
type ResultFormatter struct{}

// NewResultFormatter creates a formatter.
func NewResultFormatter() *ResultFormatter {
	return &ResultFormatter{}
}

// FormatArticle maps an enriched article result. Returns nil for a
// candidate from the wrong category or with no usable identity.
func (f *ResultFormatter) FormatArticle(r EnrichedResult) *ArticleResult {
	if r.Doc.Category != store.CategoryArticle {
		return nil
	}
	id := r.Doc.Normalized().ID
	if id == "" {
		return nil
	}
	return &ArticleResult{
		ID:         id,
		Title:      f.articleTitle(r),
		Chapter:    r.Meta.Chapter,
		ArticleNo:  r.Meta.ArticleNo,
		Content:    r.Body,
		Similarity: clampSimilarity(r.Similarity),
	}
}

// FormatCase maps an enriched case result. Returns nil for a candidate
// from the wrong category or with no usable identity.
func (f *ResultFormatter) FormatCase(r EnrichedResult) *CaseResult {
	if r.Doc.Category != store.CategoryCase {
		return nil
	}
	id := r.Doc.Normalized().ID
	if id == "" {
		return nil
	}
	return &CaseResult{
		ID:               id,
		Title:            f.caseTitle(r),
		Accusations:      r.Meta.Accusations,
		RelevantArticles: r.Meta.RelevantArticles,
		Criminals:        r.Meta.Criminals,
		PunishOfMoney:    r.Meta.PunishOfMoney,
		Imprisonment:     r.Meta.Imprisonment,
		Content:          r.Body,
		Similarity:       clampSimilarity(r.Similarity),
	}
}

// articleTitle prefers the stored title, then synthesizes one from the
// article number.
func (f *ResultFormatter) articleTitle(r EnrichedResult) string {
	if t := strings.TrimSpace(r.Meta.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	if r.Meta.ArticleNo > 0 {
		return fmt.Sprintf("刑法第%d条", r.Meta.ArticleNo)
	}
	return r.Doc.Normalized().ID
}

// caseTitle prefers the stored title, then synthesizes one from the
// leading accusation.
func (f *ResultFormatter) caseTitle(r EnrichedResult) string {
	if t := strings.TrimSpace(r.Meta.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	if len(r.Meta.Accusations) > 0 {
		return r.Meta.Accusations[0] + "案"
	}
	return r.Doc.Normalized().ID
}

func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
