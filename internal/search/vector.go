package search

import (
	"container/heap"
	"context"
	"math"
	"sort"

	"github.com/lexfuse/lexfuse/internal/embed"
	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
	"github.com/lexfuse/lexfuse/internal/store"
)

// VectorCalculator encodes queries and computes exact cosine top-k
// against a category's vector matrix.
type VectorCalculator struct {
	embedder embed.Embedder
}

// NewVectorCalculator creates a calculator over the given embedder.
func NewVectorCalculator(embedder embed.Embedder) (*VectorCalculator, error) {
	if embedder == nil {
		return nil, lexerrors.InternalError("vector calculator requires an embedder", nil)
	}
	return &VectorCalculator{embedder: embedder}, nil
}

// Encode turns query text into a vector via the embedding service.
func (v *VectorCalculator) Encode(ctx context.Context, text string) ([]float32, error) {
	vec, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, lexerrors.EncodingError("embedding service returned an empty vector", nil)
	}
	return vec, nil
}

// TopK returns the indices and similarities of the k most similar rows,
// similarity descending, ties broken by original matrix order. Selection
// is partial via a bounded min-heap so k << n avoids a full sort.
// k <= 0 returns empty; k >= n returns all rows sorted.
func (v *VectorCalculator) TopK(query []float32, matrix *store.VectorMatrix, k int) ([]int, []float64) {
	n := matrix.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	h := make(simHeap, 0, k)
	heap.Init(&h)

	for i := 0; i < n; i++ {
		sim := cosineSimilarity(query, matrix.Vectors[i])
		entry := simEntry{index: i, similarity: sim}

		if h.Len() < k {
			heap.Push(&h, entry)
			continue
		}
		if h.less(h[0], entry) {
			h[0] = entry
			heap.Fix(&h, 0)
		}
	}

	// Drain smallest-first, then reverse for descending order.
	selected := make([]simEntry, h.Len())
	for i := len(selected) - 1; i >= 0; i-- {
		selected[i] = heap.Pop(&h).(simEntry)
	}
	// heap pops only guarantee partial order over equal keys; one stable
	// sort fixes tie order by matrix index.
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].similarity != selected[j].similarity {
			return selected[i].similarity > selected[j].similarity
		}
		return selected[i].index < selected[j].index
	})

	indices := make([]int, len(selected))
	similarities := make([]float64, len(selected))
	for i, e := range selected {
		indices[i] = e.index
		similarities[i] = e.similarity
	}
	return indices, similarities
}

// simEntry pairs a matrix row with its similarity.
type simEntry struct {
	index      int
	similarity float64
}

// simHeap is a min-heap over (similarity asc, index desc) so the root
// is always the entry to evict: lowest similarity, and among equals the
// later matrix row.
type simHeap []simEntry

func (h simHeap) Len() int { return len(h) }

func (h simHeap) less(a, b simEntry) bool {
	if a.similarity != b.similarity {
		return a.similarity < b.similarity
	}
	return a.index > b.index
}

func (h simHeap) Less(i, j int) bool { return h.less(h[i], h[j]) }
func (h simHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *simHeap) Push(x any) {
	*h = append(*h, x.(simEntry))
}

func (h *simHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// cosineSimilarity computes cosine similarity clamped to [0,1]. Vectors
// of mismatched or zero length score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
