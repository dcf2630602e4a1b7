package store

import (
	"context"
	"math"
)

// VectorCollection is the persisted identity of one embedding backend's index.
// Dimension is fixed for the lifetime of the collection.
type VectorCollection struct {
	Name      string
	Model     string
	Dimension int
	CreatedTs int64
}

// VectorMetadata is the projection of a record kept next to its vector.
type VectorMetadata struct {
	Date      string `json:"date"`
	Location  string `json:"location"`
	MediaType string `json:"media_type"`
	ImageURL  string `json:"image_url"`
}

// MemoryVector is one entry of a collection, keyed by (Collection, MemoryID).
type MemoryVector struct {
	Collection string
	MemoryID   string
	Embedding  []float32
	Text       string
	Metadata   VectorMetadata
	UpdatedTs  int64
}

type FindMemoryVector struct {
	Collection string
	MemoryID   *string
}

type DeleteMemoryVector struct {
	Collection string
	MemoryID   string
}

// SearchNearestVectors is the nearest neighbor query of a collection.
type SearchNearestVectors struct {
	Collection string
	Vector     []float32
	Limit      int
}

// MemoryVectorWithDistance is a search hit. Distance is cosine distance in [0,2].
type MemoryVectorWithDistance struct {
	Vector   *MemoryVector
	Distance float64
}

func (s *Store) UpsertVectorCollection(ctx context.Context, upsert *VectorCollection) (*VectorCollection, error) {
	return s.driver.UpsertVectorCollection(ctx, upsert)
}

// GetVectorCollection returns nil, nil when the collection does not exist.
func (s *Store) GetVectorCollection(ctx context.Context, name string) (*VectorCollection, error) {
	return s.driver.GetVectorCollection(ctx, name)
}

func (s *Store) UpsertMemoryVector(ctx context.Context, upsert *MemoryVector) (*MemoryVector, error) {
	return s.driver.UpsertMemoryVector(ctx, upsert)
}

func (s *Store) ListMemoryVectors(ctx context.Context, find *FindMemoryVector) ([]*MemoryVector, error) {
	return s.driver.ListMemoryVectors(ctx, find)
}

func (s *Store) DeleteMemoryVector(ctx context.Context, delete *DeleteMemoryVector) error {
	return s.driver.DeleteMemoryVector(ctx, delete)
}

func (s *Store) SearchNearestVectors(ctx context.Context, search *SearchNearestVectors) ([]*MemoryVectorWithDistance, error) {
	if search.Limit <= 0 {
		search.Limit = 10
	}
	return s.driver.SearchNearestVectors(ctx, search)
}

// CosineDistance returns 1 - cos(a, b) in [0,2]. Zero or mismatched vectors
// are treated as orthogonal.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
