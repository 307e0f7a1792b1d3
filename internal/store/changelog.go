package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
)

// ChangeLog is the append-only ledger of mutations per circle.
type ChangeLog struct{}

// Append writes one entry and returns its row id. entry.ID is ignored.
// Callers append in the same transaction as the entity mutation.
func (ChangeLog) Append(ctx context.Context, q Querier, entry ir.ChangeEntry) (int64, error) {
	if !entry.EntityType.Valid() {
		return 0, fmt.Errorf("invalid entity type %q", entry.EntityType)
	}
	if !entry.Action.Valid() {
		return 0, fmt.Errorf("invalid action %q", entry.Action)
	}

	var data sql.NullString
	if len(entry.Data) > 0 {
		data = sql.NullString{String: string(entry.Data), Valid: true}
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO sync_log (circle_id, entity_type, entity_id, action, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.CircleID, string(entry.EntityType), entry.EntityID, string(entry.Action), data, entry.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to append change: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read change id: %w", err)
	}
	return id, nil
}

// Query returns entries of circleID strictly after since (nil = from the
// start), oldest first, at most limit of them. One extra row is fetched to
// report whether more entries remain.
func (ChangeLog) Query(ctx context.Context, q Querier, circleID string, since *ir.Timestamp, limit int) ([]ir.ChangeEntry, bool, error) {
	if limit < 1 {
		return nil, false, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, circle_id, entity_type, entity_id, action, data, timestamp
		FROM sync_log
		WHERE circle_id = ?`
	args := []any{circleID}
	if since != nil {
		query += ` AND timestamp > ?`
		args = append(args, *since)
	}
	query += ` ORDER BY timestamp ASC, id ASC LIMIT ?`
	args = append(args, limit+1)

	entries, err := queryEntries(ctx, q, query, args...)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return entries, hasMore, nil
}

// All returns the complete log of a circle, oldest first.
func (ChangeLog) All(ctx context.Context, q Querier, circleID string) ([]ir.ChangeEntry, error) {
	return queryEntries(ctx, q, `
		SELECT id, circle_id, entity_type, entity_id, action, data, timestamp
		FROM sync_log
		WHERE circle_id = ?
		ORDER BY timestamp ASC, id ASC
	`, circleID)
}

// ForEntity returns every entry that refers to one entity, oldest first.
func (ChangeLog) ForEntity(ctx context.Context, q Querier, entityType ir.EntityType, entityID string) ([]ir.ChangeEntry, error) {
	return queryEntries(ctx, q, `
		SELECT id, circle_id, entity_type, entity_id, action, data, timestamp
		FROM sync_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY timestamp ASC, id ASC
	`, string(entityType), entityID)
}

// Latest returns the newest timestamp in the whole log, or nil when empty.
// The engine clock is seeded from it so restarts never reissue a timestamp.
func (ChangeLog) Latest(ctx context.Context, q Querier) (*ir.Timestamp, error) {
	var latest sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM sync_log`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to read latest timestamp: %w", err)
	}
	return parseNullTimestamp(latest)
}

func queryEntries(ctx context.Context, q Querier, query string, args ...any) ([]ir.ChangeEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query change log: %w", err)
	}
	defer rows.Close()

	entries := []ir.ChangeEntry{}
	for rows.Next() {
		var (
			e          ir.ChangeEntry
			entityType string
			action     string
			data       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CircleID, &entityType, &e.EntityID, &action, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		e.EntityType = ir.EntityType(entityType)
		e.Action = ir.Action(action)
		if data.Valid {
			e.Data = json.RawMessage(data.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change log: %w", err)
	}
	return entries, nil
}
