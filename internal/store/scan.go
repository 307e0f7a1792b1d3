package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func parseNullTimestamp(ns sql.NullString) (*ir.Timestamp, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	ts, err := ir.ParseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullable passes a nil pointer to SQL as NULL so COALESCE keeps the
// stored value.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}
