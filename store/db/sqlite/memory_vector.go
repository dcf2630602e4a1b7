package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/decade/store"
)

// UpsertVectorCollection creates the collection if missing. The dimension of an
// existing collection is never changed here.
func (d *DB) UpsertVectorCollection(ctx context.Context, upsert *store.VectorCollection) (*store.VectorCollection, error) {
	stmt := `
		INSERT INTO vector_collection (name, model, dimension, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT(name) DO UPDATE SET model = EXCLUDED.model
	`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.Name, upsert.Model, upsert.Dimension, time.Now().Unix()); err != nil {
		return nil, errors.Wrap(err, "failed to upsert vector collection")
	}
	return d.GetVectorCollection(ctx, upsert.Name)
}

func (d *DB) GetVectorCollection(ctx context.Context, name string) (*store.VectorCollection, error) {
	collection := &store.VectorCollection{}
	err := d.db.QueryRowContext(ctx,
		`SELECT name, model, dimension, created_ts FROM vector_collection WHERE name = `+placeholder(1), name,
	).Scan(&collection.Name, &collection.Model, &collection.Dimension, &collection.CreatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get vector collection")
	}
	return collection, nil
}

func (d *DB) UpsertMemoryVector(ctx context.Context, upsert *store.MemoryVector) (*store.MemoryVector, error) {
	metadata, err := json.Marshal(upsert.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata")
	}
	upsert.UpdatedTs = time.Now().Unix()

	stmt := `
		INSERT INTO memory_vector (collection, memory_id, embedding, text, metadata, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT(collection, memory_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.Collection,
		upsert.MemoryID,
		serializeVector(upsert.Embedding),
		upsert.Text,
		string(metadata),
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert memory vector")
	}
	return upsert, nil
}

func (d *DB) ListMemoryVectors(ctx context.Context, find *store.FindMemoryVector) ([]*store.MemoryVector, error) {
	where, args := []string{"collection = " + placeholder(1)}, []any{find.Collection}
	if v := find.MemoryID; v != nil {
		where, args = append(where, "memory_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT collection, memory_id, embedding, text, metadata, updated_ts
		FROM memory_vector
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY memory_id ASC`,
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memory vectors")
	}
	defer rows.Close()

	list := []*store.MemoryVector{}
	for rows.Next() {
		vector, err := scanMemoryVector(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, vector)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) DeleteMemoryVector(ctx context.Context, delete *store.DeleteMemoryVector) error {
	stmt := `DELETE FROM memory_vector WHERE collection = ` + placeholder(1) + ` AND memory_id = ` + placeholder(2)
	if _, err := d.db.ExecContext(ctx, stmt, delete.Collection, delete.MemoryID); err != nil {
		return errors.Wrap(err, "failed to delete memory vector")
	}
	return nil
}

// SearchNearestVectors scans the collection and ranks it by cosine distance in Go.
// Equal distances keep memory_id order.
func (d *DB) SearchNearestVectors(ctx context.Context, search *store.SearchNearestVectors) ([]*store.MemoryVectorWithDistance, error) {
	vectors, err := d.ListMemoryVectors(ctx, &store.FindMemoryVector{Collection: search.Collection})
	if err != nil {
		return nil, err
	}

	results := make([]*store.MemoryVectorWithDistance, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Embedding) != len(search.Vector) {
			return nil, errors.Errorf("vector dimension mismatch in collection %s: stored %d, query %d",
				search.Collection, len(v.Embedding), len(search.Vector))
		}
		results = append(results, &store.MemoryVectorWithDistance{
			Vector:   v,
			Distance: store.CosineDistance(search.Vector, v.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > search.Limit {
		results = results[:search.Limit]
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryVector(row rowScanner) (*store.MemoryVector, error) {
	var vector store.MemoryVector
	var blob []byte
	var metadata string
	if err := row.Scan(
		&vector.Collection,
		&vector.MemoryID,
		&blob,
		&vector.Text,
		&metadata,
		&vector.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan memory vector")
	}
	embedding, err := deserializeVector(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "memory vector %s", vector.MemoryID)
	}
	vector.Embedding = embedding
	if err := json.Unmarshal([]byte(metadata), &vector.Metadata); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal metadata of memory vector %s", vector.MemoryID)
	}
	return &vector, nil
}
