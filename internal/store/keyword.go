package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
)

// BleveKeywordIndex implements KeywordIndex on Bleve with the CJK
// analyzer, which bigram-tokenizes Chinese legal text.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

// keywordDocument is the indexed document shape.
type keywordDocument struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// validateIndexIntegrity checks a Bleve index directory before opening.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveKeywordIndex opens or creates a keyword index at path. An empty
// path creates an in-memory index for testing. A corrupted on-disk index
// is cleared and recreated; callers must reindex afterward.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	indexMapping, err := createKeywordMapping()
	if err != nil {
		return nil, lexerrors.KeywordIndexError("creating index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, lexerrors.KeywordIndexError(
				fmt.Sprintf("creating directory %s", dir), err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, lexerrors.KeywordIndexError(
					fmt.Sprintf("keyword index corrupted at %s and cannot remove", path), removeErr)
			}
			slog.Info("keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, lexerrors.KeywordIndexError("keyword index corrupted, cannot clear", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, lexerrors.KeywordIndexError("opening keyword index", err)
	}

	return &BleveKeywordIndex{index: idx, path: path}, nil
}

// createKeywordMapping builds the index mapping with the CJK analyzer as
// default.
func createKeywordMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = cjk.AnalyzerName
	return indexMapping, nil
}

// Index adds or replaces documents for a category. Document IDs are
// stored in canonical form so search results map straight to refs.
func (b *BleveKeywordIndex) Index(ctx context.Context, category Category, docs []IndexDoc) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return lexerrors.KeywordIndexError("index is closed", nil)
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		id := NormalizeID(doc.ID, category)
		kd := keywordDocument{Title: doc.Title, Content: doc.Content}
		if err := batch.Index(id, kd); err != nil {
			return lexerrors.KeywordIndexError(
				fmt.Sprintf("indexing document %s", id), err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return lexerrors.KeywordIndexError("executing index batch", err)
	}
	return nil
}

// Search returns refs ordered by BM25 relevance.
func (b *BleveKeywordIndex) Search(ctx context.Context, text string, topK int) ([]KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, lexerrors.KeywordIndexError("index is closed", nil)
	}
	if strings.TrimSpace(text) == "" || topK <= 0 {
		return []KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(text)
	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = topK

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, lexerrors.KeywordIndexError("keyword search failed", err)
	}

	results := make([]KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		category, ok := CategoryFromID(hit.ID)
		if !ok {
			slog.Warn("keyword_hit_unknown_category", slog.String("doc_id", hit.ID))
			continue
		}
		results = append(results, KeywordResult{
			Ref:   DocumentRef{ID: hit.ID, Category: category},
			Score: hit.Score,
		})
	}
	return results, nil
}

// CategoryFromID derives a category from a canonical ID prefix.
func CategoryFromID(id string) (Category, bool) {
	switch {
	case strings.HasPrefix(id, CategoryArticle.Prefix()):
		return CategoryArticle, true
	case strings.HasPrefix(id, CategoryCase.Prefix()):
		return CategoryCase, true
	default:
		return "", false
	}
}

// Close releases the index.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
