package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/decade/plugin/ai"
)

type countingEmbedder struct {
	ai.EmbeddingService
	queries int
	fail    bool
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	c.queries++
	if c.fail {
		return nil, errors.New("provider down")
	}
	return c.EmbeddingService.EmbedQuery(ctx, q)
}

func TestEmbeddingCache_HitsAndMisses(t *testing.T) {
	inner := &countingEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32)}
	c := NewEmbeddingCache(inner, 8, time.Minute)
	ctx := context.Background()

	first, err := c.EmbedQuery(ctx, "beach family")
	require.NoError(t, err)
	second, err := c.EmbedQuery(ctx, "  beach family ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.queries)
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Size: 1}, c.Stats())

	c.Purge()
	_, err = c.EmbedQuery(ctx, "beach family")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.queries)
}

func TestEmbeddingCache_CaseSensitive(t *testing.T) {
	inner := &countingEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32)}
	c := NewEmbeddingCache(inner, 8, time.Minute)
	ctx := context.Background()

	_, err := c.EmbedQuery(ctx, "Jeju")
	require.NoError(t, err)
	_, err = c.EmbedQuery(ctx, "jeju")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.queries)
	assert.Equal(t, 2, c.Stats().Size)
}

func TestEmbeddingCache_DoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32), fail: true}
	c := NewEmbeddingCache(inner, 8, time.Minute)

	_, err := c.EmbedQuery(context.Background(), "q")
	require.Error(t, err)

	inner.fail = false
	_, err = c.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.queries)
}

func TestEmbeddingCache_Expires(t *testing.T) {
	inner := &countingEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32)}
	c := NewEmbeddingCache(inner, 8, 20*time.Millisecond)

	_, _ = c.EmbedQuery(context.Background(), "q")
	time.Sleep(60 * time.Millisecond)
	_, _ = c.EmbedQuery(context.Background(), "q")

	assert.Equal(t, 2, inner.queries)
}

func TestEmbeddingCache_Evicts(t *testing.T) {
	inner := &countingEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32)}
	c := NewEmbeddingCache(inner, 2, time.Minute)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c", "a"} {
		_, err := c.EmbedQuery(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, inner.queries)
	assert.Equal(t, 2, c.Stats().Size)
}

func TestEmbeddingCache_DocumentsBypass(t *testing.T) {
	inner := &countingEmbedder{EmbeddingService: ai.NewHashEmbeddingService(32)}
	c := NewEmbeddingCache(inner, 8, time.Minute)

	_, err := c.Embed(context.Background(), "doc")
	require.NoError(t, err)
	assert.Zero(t, c.Stats().Size)
	assert.Equal(t, 32, c.Dimensions())
}
