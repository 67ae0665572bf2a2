package search

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
	"github.com/lexfuse/lexfuse/internal/store"
)

// ContentEnricher resolves candidate document bodies from the store,
// trying ID spelling variants until one matches. Resolved bodies go
// through a process-wide LRU shared by all queries.
type ContentEnricher struct {
	store store.DocumentStore
	cache *lru.Cache[string, string]
}

// NewContentEnricher creates an enricher with a cache of the given
// size. Size zero falls back to the default.
func NewContentEnricher(docStore store.DocumentStore, cacheSize int) (*ContentEnricher, error) {
	if docStore == nil {
		return nil, lexerrors.InternalError("content enricher requires a document store", nil)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().ContentCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, lexerrors.InternalError("creating content cache", err)
	}
	return &ContentEnricher{store: docStore, cache: cache}, nil
}

// Enrich resolves body text for every candidate. Resolution misses are
// not errors: the result carries an empty body and the length filter
// drops it downstream.
func (e *ContentEnricher) Enrich(ctx context.Context, candidates []ScoredCandidate) ([]EnrichedResult, error) {
	out := make([]EnrichedResult, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := e.resolveBody(ctx, c.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, EnrichedResult{ScoredCandidate: c, Body: body})
	}
	return out, nil
}

// resolveBody walks the candidate's ID variants until one returns
// non-empty content. The canonical spelling is cached regardless of
// which variant hit.
func (e *ContentEnricher) resolveBody(ctx context.Context, ref store.DocumentRef) (string, error) {
	canonical := ref.Normalized()
	key := cacheKey(canonical)
	if body, ok := e.cache.Get(key); ok {
		return body, nil
	}

	for _, variant := range store.IDVariants(ref.ID, ref.Category) {
		body, err := e.store.GetContent(ctx, ref.Category, variant)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		e.cache.Add(key, body)
		return body, nil
	}

	slog.Debug("content_resolution_miss",
		slog.String("id", ref.ID),
		slog.String("category", string(ref.Category)))
	return "", nil
}

// CacheLen reports the number of cached bodies, for diagnostics.
func (e *ContentEnricher) CacheLen() int {
	return e.cache.Len()
}

func cacheKey(ref store.DocumentRef) string {
	return string(ref.Category) + "\x00" + ref.ID
}
