package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfuse/lexfuse/internal/embed"
	"github.com/lexfuse/lexfuse/internal/store"
)

func buildMatrix(vectors ...[]float32) *store.VectorMatrix {
	ids := make([]string, len(vectors))
	for i := range vectors {
		ids[i] = string(rune('a' + i))
	}
	return &store.VectorMatrix{IDs: ids, Vectors: vectors}
}

func TestNewVectorCalculator_NilEmbedder(t *testing.T) {
	_, err := NewVectorCalculator(nil)
	require.Error(t, err)
}

func TestVectorCalculator_Encode(t *testing.T) {
	calc, err := NewVectorCalculator(embed.NewStaticEmbedder())
	require.NoError(t, err)

	vec, err := calc.Encode(context.Background(), "盗窃罪的量刑标准")
	require.NoError(t, err)
	assert.Len(t, vec, embed.StaticDimensions)
}

func TestVectorCalculator_TopK_Basic(t *testing.T) {
	calc, err := NewVectorCalculator(embed.NewStaticEmbedder())
	require.NoError(t, err)

	matrix := buildMatrix(
		[]float32{1, 0, 0},
		[]float32{0, 1, 0},
		[]float32{0.9, 0.1, 0},
		[]float32{0.5, 0.5, 0},
	)
	query := []float32{1, 0, 0}

	indices, sims := calc.TopK(query, matrix, 2)
	require.Len(t, indices, 2)
	require.Len(t, sims, 2)

	// Row 0 is an exact match, row 2 the next closest.
	assert.Equal(t, []int{0, 2}, indices)
	assert.InDelta(t, 1.0, sims[0], 1e-9)
	assert.True(t, sims[0] >= sims[1])
}

func TestVectorCalculator_TopK_ReturnsTrueMaximum(t *testing.T) {
	calc, err := NewVectorCalculator(embed.NewStaticEmbedder())
	require.NoError(t, err)

	vectors := [][]float32{
		{0.1, 0.9}, {0.3, 0.7}, {0.99, 0.01}, {0.6, 0.4}, {0.8, 0.2},
		{0.2, 0.8}, {0.7, 0.3}, {0.5, 0.5}, {0.4, 0.6}, {0.95, 0.05},
	}
	matrix := buildMatrix(vectors...)
	query := []float32{1, 0}

	// Brute force for the true order.
	best := 0
	bestSim := cosineSimilarity(query, vectors[0])
	for i, v := range vectors {
		if sim := cosineSimilarity(query, v); sim > bestSim {
			best, bestSim = i, sim
		}
	}

	for k := 1; k <= len(vectors); k++ {
		indices, sims := calc.TopK(query, matrix, k)
		require.Len(t, indices, k, "k=%d", k)
		assert.Equal(t, best, indices[0], "k=%d", k)
		assert.InDelta(t, bestSim, sims[0], 1e-9, "k=%d", k)
		for i := 1; i < len(sims); i++ {
			assert.True(t, sims[i-1] >= sims[i], "k=%d not descending at %d", k, i)
		}
	}
}

func TestVectorCalculator_TopK_TiesStableByMatrixOrder(t *testing.T) {
	calc, err := NewVectorCalculator(embed.NewStaticEmbedder())
	require.NoError(t, err)

	// Rows 1 and 3 are identical; the earlier row must win the tie.
	matrix := buildMatrix(
		[]float32{0, 1},
		[]float32{1, 0},
		[]float32{0.5, 0.5},
		[]float32{1, 0},
	)
	indices, _ := calc.TopK([]float32{1, 0}, matrix, 3)
	require.Len(t, indices, 3)
	assert.Equal(t, 1, indices[0])
	assert.Equal(t, 3, indices[1])
}

func TestVectorCalculator_TopK_Bounds(t *testing.T) {
	calc, err := NewVectorCalculator(embed.NewStaticEmbedder())
	require.NoError(t, err)
	matrix := buildMatrix([]float32{1, 0}, []float32{0, 1})

	indices, sims := calc.TopK([]float32{1, 0}, matrix, 0)
	assert.Empty(t, indices)
	assert.Empty(t, sims)

	indices, _ = calc.TopK([]float32{1, 0}, matrix, 10)
	assert.Len(t, indices, 2)

	indices, _ = calc.TopK([]float32{1, 0}, &store.VectorMatrix{}, 3)
	assert.Empty(t, indices)
}

func TestCosineSimilarity_Clamped(t *testing.T) {
	// Opposite vectors would be -1 unclamped.
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 2}, []float32{5, 5}), 1e-9)
}
