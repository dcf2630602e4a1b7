package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// MemoryRecord model related methods.
	UpsertMemoryRecord(ctx context.Context, upsert *MemoryRecord) (*MemoryRecord, error)
	ListMemoryRecords(ctx context.Context, find *FindMemoryRecord) ([]*MemoryRecord, error)
	DeleteMemoryRecord(ctx context.Context, delete *DeleteMemoryRecord) error

	// VectorCollection model related methods.
	UpsertVectorCollection(ctx context.Context, upsert *VectorCollection) (*VectorCollection, error)
	GetVectorCollection(ctx context.Context, name string) (*VectorCollection, error)

	// MemoryVector model related methods.
	// UpsertMemoryVector replaces the vector of (collection, memory_id) if present.
	UpsertMemoryVector(ctx context.Context, upsert *MemoryVector) (*MemoryVector, error)
	ListMemoryVectors(ctx context.Context, find *FindMemoryVector) ([]*MemoryVector, error)
	DeleteMemoryVector(ctx context.Context, delete *DeleteMemoryVector) error
	// SearchNearestVectors returns vectors ordered by ascending cosine distance.
	SearchNearestVectors(ctx context.Context, search *SearchNearestVectors) ([]*MemoryVectorWithDistance, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	GetSystemSetting(ctx context.Context, name string) (*SystemSetting, error)
}
