package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/circlesync/internal/ir"
)

// CircleStore persists users, circles and memberships.
type CircleStore struct{}

// InsertUser creates a user. Returns ErrAlreadyExists for a taken id or email.
func (CircleStore) InsertUser(ctx context.Context, q Querier, u ir.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, name, avatar, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, nullable(u.Avatar), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser returns ErrNotFound for unknown ids.
func (CircleStore) GetUser(ctx context.Context, q Querier, id string) (*ir.User, error) {
	var (
		u      ir.User
		avatar sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, email, name, avatar, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.Name, &avatar, &u.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	u.Avatar = nullStringPtr(avatar)
	return &u, nil
}

// InsertCircle creates a circle row. Membership is added separately.
func (CircleStore) InsertCircle(ctx context.Context, q Querier, c ir.Circle) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO circles (id, name, start_date, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.Name, nullable(c.StartDate), c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert circle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetCircle returns ErrNotFound for unknown ids.
func (CircleStore) GetCircle(ctx context.Context, q Querier, id string) (*ir.Circle, error) {
	var (
		c         ir.Circle
		startDate sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, start_date, created_by, created_at, updated_at FROM circles WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &startDate, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "circle")
	}
	c.StartDate = nullStringPtr(startDate)
	return &c, nil
}

// InsertMember adds a membership. Returns ErrAlreadyExists if present.
func (CircleStore) InsertMember(ctx context.Context, q Querier, circleID, userID, role string, joinedAt ir.Timestamp) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO circle_members (circle_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(circle_id, user_id) DO NOTHING
	`, circleID, userID, role, joinedAt)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// DeleteMember removes a membership. Returns ErrNotFound if absent.
func (CircleStore) DeleteMember(ctx context.Context, q Querier, circleID, userID string) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM circle_members WHERE circle_id = ? AND user_id = ?
	`, circleID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember reports whether userID belongs to circleID.
func (CircleStore) IsMember(ctx context.Context, q Querier, circleID, userID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM circle_members WHERE circle_id = ? AND user_id = ?
	`, circleID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

// RequireMember returns ErrNotMember unless userID belongs to circleID.
func (cs CircleStore) RequireMember(ctx context.Context, q Querier, circleID, userID string) error {
	ok, err := cs.IsMember(ctx, q, circleID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

// ListMembers returns the members of a circle joined with their user
// records, in join order.
func (CircleStore) ListMembers(ctx context.Context, q Querier, circleID string) ([]ir.Member, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT cm.circle_id, cm.user_id, cm.role, cm.role_label, cm.joined_at, u.name, u.email, u.avatar
		FROM circle_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.circle_id = ?
		ORDER BY cm.joined_at ASC, cm.user_id COLLATE BINARY ASC
	`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := []ir.Member{}
	for rows.Next() {
		var (
			m                 ir.Member
			roleLabel, avatar sql.NullString
		)
		if err := rows.Scan(&m.CircleID, &m.UserID, &m.Role, &roleLabel, &m.JoinedAt, &m.Name, &m.Email, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.RoleLabel = nullStringPtr(roleLabel)
		m.Avatar = nullStringPtr(avatar)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// ListUserCircles returns every circle userID belongs to with the newest
// change log timestamp of each.
func (CircleStore) ListUserCircles(ctx context.Context, q Querier, userID string) ([]ir.CircleStatus, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.name, (SELECT MAX(timestamp) FROM sync_log sl WHERE sl.circle_id = c.id)
		FROM circles c
		JOIN circle_members cm ON cm.circle_id = c.id
		WHERE cm.user_id = ?
		ORDER BY c.created_at ASC, c.id COLLATE BINARY ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query circles: %w", err)
	}
	defer rows.Close()

	statuses := []ir.CircleStatus{}
	for rows.Next() {
		var (
			cs       ir.CircleStatus
			lastSync sql.NullString
		)
		if err := rows.Scan(&cs.CircleID, &cs.Name, &lastSync); err != nil {
			return nil, fmt.Errorf("failed to scan circle status: %w", err)
		}
		if cs.LastSync, err = parseNullTimestamp(lastSync); err != nil {
			return nil, err
		}
		statuses = append(statuses, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circles: %w", err)
	}
	return statuses, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
