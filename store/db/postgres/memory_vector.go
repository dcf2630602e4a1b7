package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/decade/store"
)

// UpsertVectorCollection creates the collection if missing. The dimension of an
// existing collection is never changed here.
func (d *DB) UpsertVectorCollection(ctx context.Context, upsert *store.VectorCollection) (*store.VectorCollection, error) {
	stmt := `
		INSERT INTO vector_collection (name, model, dimension, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (name) DO UPDATE SET model = EXCLUDED.model
		RETURNING name, model, dimension, created_ts
	`
	collection := &store.VectorCollection{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Name, upsert.Model, upsert.Dimension, time.Now().Unix()).
		Scan(&collection.Name, &collection.Model, &collection.Dimension, &collection.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert vector collection")
	}
	return collection, nil
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

	stmt := `
		INSERT INTO memory_vector (collection, memory_id, embedding, text, metadata, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (collection, memory_id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			updated_ts = EXCLUDED.updated_ts
		RETURNING updated_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.Collection,
		upsert.MemoryID,
		pgvector.NewVector(upsert.Embedding),
		upsert.Text,
		string(metadata),
		time.Now().Unix(),
	).Scan(&upsert.UpdatedTs); err != nil {
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
		var vector store.MemoryVector
		var embedding pgvector.Vector
		var metadata []byte
		if err := rows.Scan(
			&vector.Collection,
			&vector.MemoryID,
			&embedding,
			&vector.Text,
			&metadata,
			&vector.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory vector")
		}
		vector.Embedding = embedding.Slice()
		if err := json.Unmarshal(metadata, &vector.Metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata of memory vector %s", vector.MemoryID)
		}
		list = append(list, &vector)
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

// SearchNearestVectors uses the <=> cosine distance operator.
func (d *DB) SearchNearestVectors(ctx context.Context, search *store.SearchNearestVectors) ([]*store.MemoryVectorWithDistance, error) {
	query := `
		SELECT collection, memory_id, embedding, text, metadata, updated_ts,
			embedding <=> ` + placeholder(1) + ` AS distance
		FROM memory_vector
		WHERE collection = ` + placeholder(2) + `
		ORDER BY distance ASC, memory_id ASC
		LIMIT ` + placeholder(3)

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(search.Vector), search.Collection, search.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search memory vectors")
	}
	defer rows.Close()

	results := []*store.MemoryVectorWithDistance{}
	for rows.Next() {
		var vector store.MemoryVector
		var embedding pgvector.Vector
		var metadata []byte
		var distance float64
		if err := rows.Scan(
			&vector.Collection,
			&vector.MemoryID,
			&embedding,
			&vector.Text,
			&metadata,
			&vector.UpdatedTs,
			&distance,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory vector")
		}
		vector.Embedding = embedding.Slice()
		if err := json.Unmarshal(metadata, &vector.Metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata of memory vector %s", vector.MemoryID)
		}
		results = append(results, &store.MemoryVectorWithDistance{Vector: &vector, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
