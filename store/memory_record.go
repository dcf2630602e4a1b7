package store

import (
	"context"

	"github.com/pkg/errors"
)

// Face is a recognized person on a memory with the detected emotion.
type Face struct {
	Person  string `json:"person"`
	Emotion string `json:"emotion,omitempty"`
}

// MemoryRecord is one photo, video or day summary of the archive.
type MemoryRecord struct {
	ID string
	// Date is an ISO calendar date and may be partial ("2022-07") or empty.
	Date      string
	Location  string
	Weather   string
	Title     string
	Caption   string // AI generated, may carry the "[Low Confidence]" marker
	Note      string // written by the user
	Faces     []Face
	Mood      string
	MediaType string
	ImageURL  string

	CreatedTs int64
	UpdatedTs int64
}

type FindMemoryRecord struct {
	ID *string
	// UpdatedAfter selects records changed strictly after the given unix time.
	UpdatedAfter *int64

	Limit  *int
	Offset *int
}

type DeleteMemoryRecord struct {
	ID string
}

// UpsertMemoryRecord inserts a record or replaces the record with the same id.
func (s *Store) UpsertMemoryRecord(ctx context.Context, upsert *MemoryRecord) (*MemoryRecord, error) {
	if upsert.ID == "" {
		return nil, errors.New("memory record id is required")
	}
	if upsert.MediaType == "" {
		return nil, errors.Errorf("memory record %s: media type is required", upsert.ID)
	}
	return s.driver.UpsertMemoryRecord(ctx, upsert)
}

func (s *Store) ListMemoryRecords(ctx context.Context, find *FindMemoryRecord) ([]*MemoryRecord, error) {
	return s.driver.ListMemoryRecords(ctx, find)
}

// GetMemoryRecord returns nil, nil when the record does not exist.
func (s *Store) GetMemoryRecord(ctx context.Context, id string) (*MemoryRecord, error) {
	list, err := s.driver.ListMemoryRecords(ctx, &FindMemoryRecord{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteMemoryRecord(ctx context.Context, delete *DeleteMemoryRecord) error {
	return s.driver.DeleteMemoryRecord(ctx, delete)
}
