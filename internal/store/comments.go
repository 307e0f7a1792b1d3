package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
)

// CommentStore persists comments on moments.
type CommentStore struct{}

func (CommentStore) Type() ir.EntityType { return ir.EntityComment }

const commentColumns = `c.id, c.circle_id, c.target_id, c.target_type, c.author_id, c.content,
	c.reply_to_id, c.created_at, c.updated_at, c.deleted_at`

// Create requires the target to be a live moment of the same circle.
func (cs CommentStore) Create(ctx context.Context, q Querier, id, circleID, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error) {
	d, ok := p.(*ir.CommentData)
	if !ok {
		return nil, ErrPayloadType
	}
	if err := d.ValidateCreate(); err != nil {
		return nil, err
	}
	targetType := "moment"
	if d.TargetType != nil {
		targetType = *d.TargetType
	}
	if targetType != "moment" {
		return nil, fmt.Errorf("unsupported comment target type %q", targetType)
	}

	var live int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM moments WHERE id = ? AND circle_id = ? AND deleted_at IS NULL
	`, *d.TargetID, circleID).Scan(&live)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check comment target: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO comments (id, circle_id, target_id, target_type, author_id, content,
			reply_to_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, circleID, *d.TargetID, targetType, authorID, *d.Content, nullable(d.ReplyToID), at, at)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyExists
	}
	return cs.FindByID(ctx, q, id)
}

func (CommentStore) FindByID(ctx context.Context, q Querier, id string) (ir.Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments c WHERE c.id = ?`, id)
	c, err := scanComment(row)
	if err != nil {
		return nil, notFoundOr(err, "comment")
	}
	return c, nil
}

// UpdateIfOwner changes the comment text only; a comment never moves to
// another target.
func (cs CommentStore) UpdateIfOwner(ctx context.Context, q Querier, id, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error) {
	d, ok := p.(*ir.CommentData)
	if !ok {
		return nil, ErrPayloadType
	}
	if _, err := checkOwnership(ctx, cs, q, id, authorID); err != nil {
		return nil, err
	}

	_, err := q.ExecContext(ctx, `
		UPDATE comments SET content = COALESCE(?, content), updated_at = ?
		WHERE id = ? AND author_id = ? AND deleted_at IS NULL
	`, nullable(d.Content), at, id, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return cs.FindByID(ctx, q, id)
}

func (cs CommentStore) SoftDelete(ctx context.Context, q Querier, id, authorID string, at ir.Timestamp) error {
	if _, err := checkOwnership(ctx, cs, q, id, authorID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		UPDATE comments SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, at, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

func (CommentStore) ListMeta(ctx context.Context, q Querier, circleID string) ([]ir.EntityMeta, error) {
	return listMeta(ctx, q, "comments", circleID)
}

// ListOnLiveMoments returns the live comments whose moment is itself live,
// oldest first.
func (CommentStore) ListOnLiveMoments(ctx context.Context, q Querier, circleID string) ([]*ir.Comment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN moments m ON m.id = c.target_id
		WHERE c.circle_id = ?
			AND c.target_type = 'moment'
			AND c.deleted_at IS NULL
			AND m.circle_id = c.circle_id
			AND m.deleted_at IS NULL
		ORDER BY c.created_at ASC, c.id COLLATE BINARY ASC
	`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []*ir.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}

func scanComment(r rowScanner) (*ir.Comment, error) {
	var (
		c                  ir.Comment
		replyTo, deletedAt sql.NullString
	)
	err := r.Scan(&c.ID, &c.CircleID, &c.TargetID, &c.TargetType, &c.AuthorID, &c.Content,
		&replyTo, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	c.ReplyToID = nullStringPtr(replyTo)
	if c.DeletedAt, err = parseNullTimestamp(deletedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
