package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
)

// MomentStore persists moments.
type MomentStore struct{}

func (MomentStore) Type() ir.EntityType { return ir.EntityMoment }

const momentColumns = `id, circle_id, author_id, content, media_type, media_url, timestamp,
	time_label, context_tags, location, is_favorite, future_message,
	created_at, updated_at, deleted_at`

func (ms MomentStore) Create(ctx context.Context, q Querier, id, circleID, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error) {
	d, ok := p.(*ir.MomentData)
	if !ok {
		return nil, ErrPayloadType
	}
	if err := d.ValidateCreate(); err != nil {
		return nil, err
	}

	mediaType := "text"
	if d.MediaType != nil {
		mediaType = *d.MediaType
	}
	timestamp := at.String()
	if d.Timestamp != nil {
		normalized, err := ir.NormalizeTimestamp(*d.Timestamp)
		if err != nil {
			return nil, err
		}
		timestamp = normalized
	}
	tags, err := encodeTags(d.ContextTags)
	if err != nil {
		return nil, err
	}
	fav := d.IsFavorite != nil && *d.IsFavorite

	res, err := q.ExecContext(ctx, `
		INSERT INTO moments (id, circle_id, author_id, content, media_type, media_url, timestamp,
			time_label, context_tags, location, is_favorite, future_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, circleID, authorID, *d.Content, mediaType, nullable(d.MediaURL), timestamp,
		nullable(d.TimeLabel), tags, nullable(d.Location), fav, nullable(d.FutureMessage), at, at)
	if err != nil {
		return nil, fmt.Errorf("failed to insert moment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyExists
	}
	return ms.FindByID(ctx, q, id)
}

func (MomentStore) FindByID(ctx context.Context, q Querier, id string) (ir.Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+momentColumns+` FROM moments WHERE id = ?`, id)
	m, err := scanMoment(row)
	if err != nil {
		return nil, notFoundOr(err, "moment")
	}
	return m, nil
}

func (ms MomentStore) UpdateIfOwner(ctx context.Context, q Querier, id, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error) {
	d, ok := p.(*ir.MomentData)
	if !ok {
		return nil, ErrPayloadType
	}
	if _, err := checkOwnership(ctx, ms, q, id, authorID); err != nil {
		return nil, err
	}

	var timestamp any
	if d.Timestamp != nil {
		normalized, err := ir.NormalizeTimestamp(*d.Timestamp)
		if err != nil {
			return nil, err
		}
		timestamp = normalized
	}
	var tags any
	if d.ContextTags != nil {
		encoded, err := encodeTags(d.ContextTags)
		if err != nil {
			return nil, err
		}
		tags = encoded
	}

	_, err := q.ExecContext(ctx, `
		UPDATE moments SET
			content = COALESCE(?, content),
			media_type = COALESCE(?, media_type),
			media_url = COALESCE(?, media_url),
			timestamp = COALESCE(?, timestamp),
			time_label = COALESCE(?, time_label),
			context_tags = COALESCE(?, context_tags),
			location = COALESCE(?, location),
			is_favorite = COALESCE(?, is_favorite),
			future_message = COALESCE(?, future_message),
			updated_at = ?
		WHERE id = ? AND author_id = ? AND deleted_at IS NULL
	`, nullable(d.Content), nullable(d.MediaType), nullable(d.MediaURL), timestamp,
		nullable(d.TimeLabel), tags, nullable(d.Location), nullable(d.IsFavorite),
		nullable(d.FutureMessage), at, id, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to update moment: %w", err)
	}
	return ms.FindByID(ctx, q, id)
}

func (ms MomentStore) SoftDelete(ctx context.Context, q Querier, id, authorID string, at ir.Timestamp) error {
	if _, err := checkOwnership(ctx, ms, q, id, authorID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		UPDATE moments SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, at, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete moment: %w", err)
	}
	return nil
}

func (MomentStore) ListMeta(ctx context.Context, q Querier, circleID string) ([]ir.EntityMeta, error) {
	return listMeta(ctx, q, "moments", circleID)
}

// ListLive returns the non-deleted moments of a circle, newest first.
// Timestamps are stored normalized, so text order is time order.
func (MomentStore) ListLive(ctx context.Context, q Querier, circleID string) ([]*ir.Moment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+momentColumns+`
		FROM moments
		WHERE circle_id = ? AND deleted_at IS NULL
		ORDER BY timestamp DESC, id COLLATE BINARY ASC
	`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query moments: %w", err)
	}
	defer rows.Close()

	moments := []*ir.Moment{}
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan moment: %w", err)
		}
		moments = append(moments, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moments: %w", err)
	}
	return moments, nil
}

func scanMoment(r rowScanner) (*ir.Moment, error) {
	var (
		m                                     ir.Moment
		mediaURL, timeLabel, location, future sql.NullString
		tags                                  string
		deletedAt                             sql.NullString
	)
	err := r.Scan(&m.ID, &m.CircleID, &m.AuthorID, &m.Content, &m.MediaType, &mediaURL, &m.Timestamp,
		&timeLabel, &tags, &location, &m.IsFavorite, &future,
		&m.CreatedAt, &m.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	m.MediaURL = nullStringPtr(mediaURL)
	m.TimeLabel = nullStringPtr(timeLabel)
	m.Location = nullStringPtr(location)
	m.FutureMessage = nullStringPtr(future)
	if m.DeletedAt, err = parseNullTimestamp(deletedAt); err != nil {
		return nil, err
	}
	m.ContextTags = []ir.ContextTag{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &m.ContextTags); err != nil {
			return nil, fmt.Errorf("invalid context_tags: %w", err)
		}
	}
	return &m, nil
}

func encodeTags(tags *[]ir.ContextTag) (string, error) {
	if tags == nil || *tags == nil {
		return "[]", nil
	}
	data, err := json.Marshal(*tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode context tags: %w", err)
	}
	return string(data), nil
}

// listMeta reads the shared columns of any entity table.
func listMeta(ctx context.Context, q Querier, table, circleID string) ([]ir.EntityMeta, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, circle_id, author_id, created_at, updated_at, deleted_at
		FROM %s
		WHERE circle_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, table), circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	metas := []ir.EntityMeta{}
	for rows.Next() {
		var (
			m         ir.EntityMeta
			deletedAt sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.CircleID, &m.AuthorID, &m.CreatedAt, &m.UpdatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		if m.DeletedAt, err = parseNullTimestamp(deletedAt); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", table, err)
	}
	return metas, nil
}
