package search

import (
	"sort"

	"github.com/lexfuse/lexfuse/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// FusedResult is a single document after RRF fusion of the semantic and
// keyword paths.
type FusedResult struct {
	Doc          store.DocumentRef
	RRFScore     float64 // combined score, normalized to 0-1
	SemScore     float64 // original vector similarity
	SemRank      int     // 1-indexed position in semantic list, 0 if absent
	KeywordScore float64 // original BM25 score
	KeywordRank  int     // 1-indexed position in keyword list, 0 if absent
	InBothLists  bool
}

// Weights are the per-path contribution weights for fusion.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights weight both paths equally.
func DefaultWeights() Weights {
	return Weights{Semantic: 1.0, Keyword: 1.0}
}

// FusionEngine combines the semantic and keyword ranked lists using
// Reciprocal Rank Fusion.
//
// RRF_score(d) = sum over lists of weight_i / (K + rank_i)
// with 1-indexed ranks and K the smoothing constant.
type FusionEngine struct {
	K int
}

// NewFusionEngine creates a fusion engine with the default k=60.
func NewFusionEngine() *FusionEngine {
	return &FusionEngine{K: DefaultRRFConstant}
}

// NewFusionEngineWithK creates a fusion engine with a custom constant.
// k <= 0 falls back to the default.
func NewFusionEngineWithK(k int) *FusionEngine {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &FusionEngine{K: k}
}

// Fuse combines semantic and keyword results. Documents in only one list
// receive the other path's contribution at missing rank
// max(len(semantic), len(keyword)) + 1.
//
// Results sort by RRFScore desc, then InBothLists, then semantic
// similarity desc, then canonical ID asc.
func (f *FusionEngine) Fuse(semantic []ScoredCandidate, keyword []store.KeywordResult, weights Weights) []*FusedResult {
	if len(semantic) == 0 && len(keyword) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[store.DocumentRef]*FusedResult, len(semantic)+len(keyword))

	for rank, c := range semantic {
		result := f.getOrCreate(scores, c.Doc)
		result.SemScore = c.Similarity
		result.SemRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
	}

	for rank, r := range keyword {
		result := f.getOrCreate(scores, r.Ref)
		result.KeywordScore = r.Score
		result.KeywordRank = rank + 1
		result.RRFScore += weights.Keyword / float64(f.K+rank+1)

		if result.SemRank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := f.calculateMissingRank(len(semantic), len(keyword))
	for _, r := range scores {
		if r.SemRank == 0 && r.KeywordRank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
		if r.KeywordRank == 0 && r.SemRank > 0 {
			r.RRFScore += weights.Keyword / float64(f.K+missingRank)
		}
	}

	results := f.toSortedSlice(scores)
	f.normalize(results)
	return results
}

// getOrCreate returns the existing record or creates one keyed by the
// normalized ref so ID spelling variants accumulate together.
func (f *FusionEngine) getOrCreate(m map[store.DocumentRef]*FusedResult, ref store.DocumentRef) *FusedResult {
	key := ref.Normalized()
	if r, ok := m[key]; ok {
		return r
	}
	r := &FusedResult{Doc: key}
	m[key] = r
	return r
}

// calculateMissingRank returns the rank charged to documents absent from
// one list.
func (f *FusionEngine) calculateMissingRank(semLen, keywordLen int) int {
	if semLen > keywordLen {
		return semLen + 1
	}
	return keywordLen + 1
}

func (f *FusionEngine) toSortedSlice(m map[store.DocumentRef]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})
	return results
}

// compare implements the deterministic sort order.
func (f *FusionEngine) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.SemScore != b.SemScore {
		return a.SemScore > b.SemScore
	}
	return a.Doc.ID < b.Doc.ID
}

// normalize scales scores so the maximum becomes 1.0.
func (f *FusionEngine) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore = r.RRFScore / maxScore
	}
}
