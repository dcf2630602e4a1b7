package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/decade/plugin/ai"
	"github.com/hrygo/decade/store"
)

// StoreIndex keeps collections in the database: SQLite with Go side cosine
// search, or PostgreSQL with pgvector.
type StoreIndex struct {
	store *store.Store
}

// NewStoreIndex creates an Index on top of s.
func NewStoreIndex(s *store.Store) *StoreIndex {
	return &StoreIndex{store: s}
}

func (x *StoreIndex) Open(ctx context.Context, collection, model string, dimension int) error {
	existing, err := x.store.GetVectorCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collection, err)
	}
	if existing != nil && existing.Dimension != dimension {
		return fmt.Errorf("%w: collection %s was built with %s (%d dimensions), configured model %s has %d",
			ai.ErrDimensionMismatch, collection, existing.Model, existing.Dimension, model, dimension)
	}
	if existing != nil && existing.Model == model {
		return nil
	}
	if existing != nil {
		slog.Warn("embedding model changed with the same dimension, reindex to refresh vectors",
			slog.String("collection", collection),
			slog.String("from", existing.Model),
			slog.String("to", model))
	}

	_, err = x.store.UpsertVectorCollection(ctx, &store.VectorCollection{
		Name:      collection,
		Model:     model,
		Dimension: dimension,
	})
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", collection, err)
	}
	return nil
}

func (x *StoreIndex) Upsert(ctx context.Context, collection string, entry *Entry) error {
	_, err := x.store.UpsertMemoryVector(ctx, &store.MemoryVector{
		Collection: collection,
		MemoryID:   entry.ID,
		Embedding:  entry.Vector,
		Text:       entry.Text,
		Metadata:   entry.Metadata,
	})
	if err != nil {
		return fmt.Errorf("upsert vector %s/%s: %w", collection, entry.ID, err)
	}
	return nil
}

func (x *StoreIndex) SearchNearest(ctx context.Context, collection string, vector []float32, limit int) ([]*Neighbor, error) {
	rows, err := x.store.SearchNearestVectors(ctx, &store.SearchNearestVectors{
		Collection: collection,
		Vector:     vector,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	neighbors := make([]*Neighbor, 0, len(rows))
	for _, row := range rows {
		neighbors = append(neighbors, &Neighbor{
			Entry: Entry{
				ID:       row.Vector.MemoryID,
				Vector:   row.Vector.Embedding,
				Text:     row.Vector.Text,
				Metadata: row.Vector.Metadata,
			},
			Distance: row.Distance,
		})
	}
	return neighbors, nil
}
