package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
)

// LetterStore persists letters. Only drafts can be changed through sync.
type LetterStore struct{}

func (LetterStore) Type() ir.EntityType { return ir.EntityLetter }

const letterColumns = `id, circle_id, author_id, title, preview, content, status, type,
	recipient, unlock_date, sealed_at, created_at, updated_at, deleted_at`

func (ls LetterStore) Create(ctx context.Context, q Querier, id, circleID, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error) {
	d, ok := p.(*ir.LetterData)
	if !ok {
		return nil, ErrPayloadType
	}
	if err := d.ValidateCreate(); err != nil {
		return nil, err
	}

	letterType := "free"
	if d.Type != nil {
		letterType = *d.Type
	}
	recipient := ""
	if d.Recipient != nil {
		recipient = *d.Recipient
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO letters (id, circle_id, author_id, title, preview, content, status, type,
			recipient, unlock_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, circleID, authorID, *d.Title, d.DerivedPreview(), nullable(d.Content), ir.LetterDraft,
		letterType, recipient, nullable(d.UnlockDate), at, at)
	if err != nil {
		return nil, fmt.Errorf("failed to insert letter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyExists
	}
	return ls.FindByID(ctx, q, id)
}

func (LetterStore) FindByID(ctx context.Context, q Querier, id string) (ir.Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+letterColumns+` FROM letters WHERE id = ?`, id)
	l, err := scanLetter(row)
	if err != nil {
		return nil, notFoundOr(err, "letter")
	}
	return l, nil
}

func (ls LetterStore) UpdateIfOwner(ctx context.Context, q Querier, id, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error) {
	d, ok := p.(*ir.LetterData)
	if !ok {
		return nil, ErrPayloadType
	}
	existing, err := checkOwnership(ctx, ls, q, id, authorID)
	if err != nil {
		return nil, err
	}
	if existing.(*ir.Letter).Status != ir.LetterDraft {
		return nil, ErrLetterNotDraft
	}

	_, err = q.ExecContext(ctx, `
		UPDATE letters SET
			title = COALESCE(?, title),
			preview = COALESCE(?, preview),
			content = COALESCE(?, content),
			type = COALESCE(?, type),
			recipient = COALESCE(?, recipient),
			unlock_date = COALESCE(?, unlock_date),
			updated_at = ?
		WHERE id = ? AND author_id = ? AND status = 'draft' AND deleted_at IS NULL
	`, nullable(d.Title), nullable(d.Preview), nullable(d.Content), nullable(d.Type),
		nullable(d.Recipient), nullable(d.UnlockDate), at, id, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to update letter: %w", err)
	}
	return ls.FindByID(ctx, q, id)
}

// SoftDelete removes a letter of any status.
func (ls LetterStore) SoftDelete(ctx context.Context, q Querier, id, authorID string, at ir.Timestamp) error {
	if _, err := checkOwnership(ctx, ls, q, id, authorID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		UPDATE letters SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, at, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete letter: %w", err)
	}
	return nil
}

// Seal moves a draft letter to sealed. unlockDate, when set, replaces the
// stored unlock date.
func (ls LetterStore) Seal(ctx context.Context, q Querier, id, authorID string, unlockDate *string, at ir.Timestamp) (*ir.Letter, error) {
	existing, err := checkOwnership(ctx, ls, q, id, authorID)
	if err != nil {
		return nil, err
	}
	if existing.(*ir.Letter).Status != ir.LetterDraft {
		return nil, ErrLetterNotDraft
	}

	_, err = q.ExecContext(ctx, `
		UPDATE letters SET
			status = 'sealed',
			unlock_date = COALESCE(?, unlock_date),
			sealed_at = ?,
			updated_at = ?
		WHERE id = ?
	`, nullable(unlockDate), at, at, id)
	if err != nil {
		return nil, fmt.Errorf("failed to seal letter: %w", err)
	}

	sealed, err := ls.FindByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return sealed.(*ir.Letter), nil
}

func (LetterStore) ListMeta(ctx context.Context, q Querier, circleID string) ([]ir.EntityMeta, error) {
	return listMeta(ctx, q, "letters", circleID)
}

// ListLive returns the non-deleted letters of a circle, newest first.
func (LetterStore) ListLive(ctx context.Context, q Querier, circleID string) ([]*ir.Letter, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+letterColumns+`
		FROM letters
		WHERE circle_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id COLLATE BINARY ASC
	`, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query letters: %w", err)
	}
	defer rows.Close()

	letters := []*ir.Letter{}
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan letter: %w", err)
		}
		letters = append(letters, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating letters: %w", err)
	}
	return letters, nil
}

func scanLetter(r rowScanner) (*ir.Letter, error) {
	var (
		l                   ir.Letter
		content, unlockDate sql.NullString
		sealedAt, deletedAt sql.NullString
	)
	err := r.Scan(&l.ID, &l.CircleID, &l.AuthorID, &l.Title, &l.Preview, &content, &l.Status, &l.Type,
		&l.Recipient, &unlockDate, &sealedAt, &l.CreatedAt, &l.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	l.Content = nullStringPtr(content)
	l.UnlockDate = nullStringPtr(unlockDate)
	if l.SealedAt, err = parseNullTimestamp(sealedAt); err != nil {
		return nil, err
	}
	if l.DeletedAt, err = parseNullTimestamp(deletedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
