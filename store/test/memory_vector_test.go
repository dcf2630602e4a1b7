package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/decade/store"
)

func TestVectorCollectionStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	missing, err := ts.GetVectorCollection(ctx, "local")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := ts.UpsertVectorCollection(ctx, &store.VectorCollection{Name: "local", Model: "hash", Dimension: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, created.Dimension)

	// The dimension of an existing collection is kept.
	again, err := ts.UpsertVectorCollection(ctx, &store.VectorCollection{Name: "local", Model: "hash-v2", Dimension: 8})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Dimension)
	assert.Equal(t, "hash-v2", again.Model)
}

func TestMemoryVectorUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	for _, text := range []string{"first", "second"} {
		_, err := ts.UpsertMemoryVector(ctx, &store.MemoryVector{
			Collection: "local",
			MemoryID:   "1",
			Embedding:  []float32{1, 0, 0},
			Text:       text,
			Metadata:   store.VectorMetadata{Date: "2022-07-10", MediaType: "photo"},
		})
		require.NoError(t, err)
	}

	list, err := ts.ListMemoryVectors(ctx, &store.FindMemoryVector{Collection: "local"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Text)
	assert.Equal(t, "2022-07-10", list[0].Metadata.Date)
	assert.Equal(t, []float32{1, 0, 0}, list[0].Embedding)
}

func TestSearchNearestVectors(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	vectors := map[string][]float32{
		"same":     {1, 0, 0},
		"close":    {0.9, 0.1, 0},
		"opposite": {-1, 0, 0},
	}
	for id, vec := range vectors {
		_, err := ts.UpsertMemoryVector(ctx, &store.MemoryVector{Collection: "local", MemoryID: id, Embedding: vec})
		require.NoError(t, err)
	}
	// Other collections are invisible.
	_, err := ts.UpsertMemoryVector(ctx, &store.MemoryVector{Collection: "remote", MemoryID: "x", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	results, err := ts.SearchNearestVectors(ctx, &store.SearchNearestVectors{
		Collection: "local",
		Vector:     []float32{1, 0, 0},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "same", results[0].Vector.MemoryID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, "close", results[1].Vector.MemoryID)

	all, err := ts.SearchNearestVectors(ctx, &store.SearchNearestVectors{Collection: "local", Vector: []float32{1, 0, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.InDelta(t, 2, all[2].Distance, 1e-6)
}

func TestDeleteMemoryVector(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.UpsertMemoryVector(ctx, &store.MemoryVector{Collection: "local", MemoryID: "1", Embedding: []float32{1, 0}})
	require.NoError(t, err)
	require.NoError(t, ts.DeleteMemoryVector(ctx, &store.DeleteMemoryVector{Collection: "local", MemoryID: "1"}))

	list, err := ts.ListMemoryVectors(ctx, &store.FindMemoryVector{Collection: "local"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, store.CosineDistance([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 2, store.CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, store.CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, store.CosineDistance([]float32{1}, []float32{1, 0}))
}
