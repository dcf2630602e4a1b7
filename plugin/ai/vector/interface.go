// Package vector provides embedding backends: an embedding model paired with a
// persistent vector index, keyed by memory record id.
package vector

import (
	"context"

	"github.com/hrygo/decade/store"
)

// Kind tells whether a backend works offline.
type Kind string

const (
	// KindLocal backends are always available.
	KindLocal Kind = "local"
	// KindRemote backends need the network and a credential; they may be absent.
	KindRemote Kind = "remote"
)

// Entry is one vector of a backend's index.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata store.VectorMetadata
}

// Neighbor is a nearest neighbor search result. Distance is cosine distance in [0,2].
type Neighbor struct {
	Entry
	Distance float64
}

// Backend is an embedding function plus the index its vectors live in.
// A backend commits to one model and dimension for its lifetime.
type Backend interface {
	Name() string
	Kind() Kind

	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Upsert inserts or replaces the entry with the same ID.
	Upsert(ctx context.Context, entry *Entry) error
	// SearchNearest returns at most limit entries by ascending distance.
	SearchNearest(ctx context.Context, vector []float32, limit int) ([]*Neighbor, error)

	Dimension() int
}

// Index persists the vectors of named collections.
type Index interface {
	// Open creates the collection or verifies that the persisted one has the
	// given dimension.
	Open(ctx context.Context, collection, model string, dimension int) error
	Upsert(ctx context.Context, collection string, entry *Entry) error
	SearchNearest(ctx context.Context, collection string, vector []float32, limit int) ([]*Neighbor, error)
}
