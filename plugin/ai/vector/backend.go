package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrygo/decade/plugin/ai"
)

type backend struct {
	name     string
	kind     Kind
	embedder ai.EmbeddingService
	index    Index

	// serializes writes to the index
	writeMu sync.Mutex
}

// NewBackend opens the backend's collection in index. A persisted collection
// of a different dimension fails with ai.ErrDimensionMismatch.
func NewBackend(ctx context.Context, name string, kind Kind, embedder ai.EmbeddingService, index Index) (Backend, error) {
	if err := index.Open(ctx, name, embedder.Model(), embedder.Dimensions()); err != nil {
		return nil, fmt.Errorf("open %s backend: %w", name, err)
	}
	return &backend{
		name:     name,
		kind:     kind,
		embedder: embedder,
		index:    index,
	}, nil
}

func (b *backend) Name() string { return b.name }

func (b *backend) Kind() Kind { return b.kind }

func (b *backend) Dimension() int { return b.embedder.Dimensions() }

func (b *backend) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.embedder.Embed(ctx, text)
}

func (b *backend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return b.embedder.EmbedQuery(ctx, text)
}

func (b *backend) Upsert(ctx context.Context, entry *Entry) error {
	if len(entry.Vector) != b.Dimension() {
		return fmt.Errorf("%w: %s backend expects %d, got %d for %s",
			ai.ErrDimensionMismatch, b.name, b.Dimension(), len(entry.Vector), entry.ID)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.index.Upsert(ctx, b.name, entry)
}

func (b *backend) SearchNearest(ctx context.Context, vector []float32, limit int) ([]*Neighbor, error) {
	if len(vector) != b.Dimension() {
		return nil, fmt.Errorf("%w: %s backend expects %d, got %d",
			ai.ErrDimensionMismatch, b.name, b.Dimension(), len(vector))
	}
	return b.index.SearchNearest(ctx, b.name, vector, limit)
}
