package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts compute calls.
type countingEmbedder struct {
	*StaticEmbedder
	mu         sync.Mutex
	embedCalls int
	batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.embedCalls++
	c.mu.Unlock()
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batchTexts += len(texts)
	c.mu.Unlock()
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "故意伤害罪的量刑标准")
	require.NoError(t, err)

	second, err := cached.Embed(ctx, "故意伤害罪的量刑标准")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	results, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Only the two uncached texts hit the inner embedder.
	assert.Equal(t, 2, inner.batchTexts)
}

func TestCachedEmbedderEmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)

	results, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCachedEmbedderPassthrough(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)

	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static-hash", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.NoError(t, cached.Close())
}
