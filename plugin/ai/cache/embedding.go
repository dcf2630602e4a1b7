// Package cache memoizes query embeddings in front of an embedding backend.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hrygo/decade/plugin/ai"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// EmbeddingCache wraps an ai.EmbeddingService and caches EmbedQuery results.
// Document embeddings are not cached; each record is embedded once per index pass.
type EmbeddingCache struct {
	ai.EmbeddingService

	lru    *expirable.LRU[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewEmbeddingCache creates a query cache holding at most size vectors for ttl.
func NewEmbeddingCache(next ai.EmbeddingService, size int, ttl time.Duration) *EmbeddingCache {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &EmbeddingCache{
		EmbeddingService: next,
		lru:              expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// EmbedQuery returns the cached vector for query, computing it on a miss.
// Surrounding whitespace is dropped before embedding. Errors are never cached.
func (c *EmbeddingCache) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	query = strings.TrimSpace(query)
	key := c.key(query)
	if v, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err := c.EmbeddingService.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// Purge drops every cached vector.
func (c *EmbeddingCache) Purge() {
	c.lru.Purge()
}

// Stats returns hit and miss counters.
func (c *EmbeddingCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len()}
}

// key is case sensitive, as embedding models are. The model is part of the
// key so a model switch never serves stale vectors.
func (c *EmbeddingCache) key(query string) string {
	return c.Model() + "\x00" + query
}
