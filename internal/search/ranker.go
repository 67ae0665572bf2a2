package search

import (
	"sort"

	"github.com/lexfuse/lexfuse/internal/store"
)

// MergeStrategy selects how multi-category candidate lists are merged.
type MergeStrategy int

const (
	// StrategyInterleaved repeatedly pops the higher-similarity head
	// across category lists.
	StrategyInterleaved MergeStrategy = iota
	// StrategySimilarityPriority concatenates all categories and sorts
	// purely by similarity.
	StrategySimilarityPriority
	// StrategyBalancedMix reserves top slots per category, then fills
	// the rest by global similarity.
	StrategyBalancedMix
)

// SimilarityRanker sorts and merges ranked candidate lists.
type SimilarityRanker struct{}

// NewSimilarityRanker creates a ranker.
func NewSimilarityRanker() *SimilarityRanker {
	return &SimilarityRanker{}
}

// RankSingle sorts candidates by similarity descending, stable on ties.
func (r *SimilarityRanker) RankSingle(candidates []ScoredCandidate) []ScoredCandidate {
	ranked := make([]ScoredCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	return ranked
}

// MergeMultiCategory merges per-category ranked lists into one list of at
// most total entries using the given strategy. Input lists need not be
// pre-sorted.
func (r *SimilarityRanker) MergeMultiCategory(byCategory map[store.Category][]ScoredCandidate, total int, strategy MergeStrategy) []ScoredCandidate {
	if total <= 0 {
		return nil
	}

	switch strategy {
	case StrategyInterleaved:
		return r.mergeInterleaved(byCategory, total)
	case StrategyBalancedMix:
		return r.mergeBalanced(byCategory, total)
	default:
		return r.mergeBySimilarity(byCategory, total)
	}
}

// categoryOrder fixes iteration order over the category map.
var categoryOrder = []store.Category{store.CategoryArticle, store.CategoryCase}

func (r *SimilarityRanker) mergeInterleaved(byCategory map[store.Category][]ScoredCandidate, total int) []ScoredCandidate {
	heads := make(map[store.Category]int, len(byCategory))
	sorted := make(map[store.Category][]ScoredCandidate, len(byCategory))
	for cat, list := range byCategory {
		sorted[cat] = r.RankSingle(list)
	}

	var merged []ScoredCandidate
	for len(merged) < total {
		var bestCat store.Category
		best := -1.0
		found := false
		for _, cat := range categoryOrder {
			list := sorted[cat]
			if heads[cat] >= len(list) {
				continue
			}
			if sim := list[heads[cat]].Similarity; !found || sim > best {
				best = sim
				bestCat = cat
				found = true
			}
		}
		if !found {
			break
		}
		merged = append(merged, sorted[bestCat][heads[bestCat]])
		heads[bestCat]++
	}
	return merged
}

func (r *SimilarityRanker) mergeBySimilarity(byCategory map[store.Category][]ScoredCandidate, total int) []ScoredCandidate {
	var all []ScoredCandidate
	for _, cat := range categoryOrder {
		all = append(all, byCategory[cat]...)
	}
	ranked := r.RankSingle(all)
	if len(ranked) > total {
		ranked = ranked[:total]
	}
	return ranked
}

// mergeBalanced reserves max(1, total/3) slots per category from each
// category's top, then fills remaining slots by global similarity from
// what remains.
func (r *SimilarityRanker) mergeBalanced(byCategory map[store.Category][]ScoredCandidate, total int) []ScoredCandidate {
	reserved := total / 3
	if reserved < 1 {
		reserved = 1
	}

	var merged []ScoredCandidate
	var remainder []ScoredCandidate
	for _, cat := range categoryOrder {
		ranked := r.RankSingle(byCategory[cat])
		take := reserved
		if take > len(ranked) {
			take = len(ranked)
		}
		merged = append(merged, ranked[:take]...)
		remainder = append(remainder, ranked[take:]...)
	}

	if len(merged) > total {
		merged = r.RankSingle(merged)[:total]
		return merged
	}

	remainder = r.RankSingle(remainder)
	for _, c := range remainder {
		if len(merged) >= total {
			break
		}
		merged = append(merged, c)
	}
	return merged
}
