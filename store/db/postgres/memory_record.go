package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/decade/store"
)

func (d *DB) UpsertMemoryRecord(ctx context.Context, upsert *store.MemoryRecord) (*store.MemoryRecord, error) {
	faces := upsert.Faces
	if faces == nil {
		faces = []store.Face{}
	}
	facesJSON, err := json.Marshal(faces)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal faces")
	}
	now := time.Now().Unix()
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = now
	}
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}

	stmt := `
		INSERT INTO memory_record (id, date, location, weather, title, caption, note, faces, mood, media_type, image_url, created_ts, updated_ts)
		VALUES (` + placeholders(13) + `)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			location = EXCLUDED.location,
			weather = EXCLUDED.weather,
			title = EXCLUDED.title,
			caption = EXCLUDED.caption,
			note = EXCLUDED.note,
			faces = EXCLUDED.faces,
			mood = EXCLUDED.mood,
			media_type = EXCLUDED.media_type,
			image_url = EXCLUDED.image_url,
			updated_ts = EXCLUDED.updated_ts
		RETURNING created_ts, updated_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.Date,
		upsert.Location,
		upsert.Weather,
		upsert.Title,
		upsert.Caption,
		upsert.Note,
		string(facesJSON),
		upsert.Mood,
		upsert.MediaType,
		upsert.ImageURL,
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.CreatedTs, &upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert memory record")
	}
	return upsert, nil
}

func (d *DB) ListMemoryRecords(ctx context.Context, find *store.FindMemoryRecord) ([]*store.MemoryRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UpdatedAfter; v != nil {
		where, args = append(where, "updated_ts > "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT id, date, location, weather, title, caption, note, faces, mood, media_type, image_url, created_ts, updated_ts
		FROM memory_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts ASC, id ASC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memory records")
	}
	defer rows.Close()

	list := []*store.MemoryRecord{}
	for rows.Next() {
		var record store.MemoryRecord
		var faces []byte
		if err := rows.Scan(
			&record.ID,
			&record.Date,
			&record.Location,
			&record.Weather,
			&record.Title,
			&record.Caption,
			&record.Note,
			&faces,
			&record.Mood,
			&record.MediaType,
			&record.ImageURL,
			&record.CreatedTs,
			&record.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory record")
		}
		if err := json.Unmarshal(faces, &record.Faces); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal faces of memory record %s", record.ID)
		}
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) DeleteMemoryRecord(ctx context.Context, delete *store.DeleteMemoryRecord) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM memory_record WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete memory record")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Errorf("memory record %s not found", delete.ID)
	}
	return nil
}
