package store

import (
	"context"

	"github.com/roach88/circlesync/internal/ir"
)

// EntityStore is the persistence contract every synced entity type
// implements. Mutations take a Querier so callers can pair them with a
// change log append in one transaction.
type EntityStore interface {
	// Type is the entity type tag this store serves.
	Type() ir.EntityType

	// Create inserts a new entity. Returns ErrAlreadyExists if id is taken,
	// including by a soft-deleted entity.
	Create(ctx context.Context, q Querier, id, circleID, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error)

	// FindByID returns the entity whether or not it is soft-deleted.
	FindByID(ctx context.Context, q Querier, id string) (ir.Entity, error)

	// UpdateIfOwner applies the non-nil fields of p. Returns ErrNotFound for
	// missing or soft-deleted entities and ErrUnauthorized when authorID is
	// not the author.
	UpdateIfOwner(ctx context.Context, q Querier, id, authorID string, p ir.Payload, at ir.Timestamp) (ir.Entity, error)

	// SoftDelete sets deleted_at. Same error contract as UpdateIfOwner.
	SoftDelete(ctx context.Context, q Querier, id, authorID string, at ir.Timestamp) error

	// ListMeta returns the metadata of every entity of a circle, deleted or not.
	ListMeta(ctx context.Context, q Querier, circleID string) ([]ir.EntityMeta, error)
}

// checkOwnership loads an entity and applies the shared mutation guards.
func checkOwnership(ctx context.Context, es EntityStore, q Querier, id, authorID string) (ir.Entity, error) {
	existing, err := es.FindByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	meta := existing.Meta()
	if meta.Deleted() {
		return nil, ErrNotFound
	}
	if meta.AuthorID != authorID {
		return nil, ErrUnauthorized
	}
	return existing, nil
}

// Moments returns the moment store.
func (s *Store) Moments() MomentStore { return MomentStore{} }

// Letters returns the letter store.
func (s *Store) Letters() LetterStore { return LetterStore{} }

// Comments returns the comment store.
func (s *Store) Comments() CommentStore { return CommentStore{} }

// Log returns the change log store.
func (s *Store) Log() ChangeLog { return ChangeLog{} }

// Circles returns the circle and membership store.
func (s *Store) Circles() CircleStore { return CircleStore{} }

var (
	_ EntityStore = MomentStore{}
	_ EntityStore = LetterStore{}
	_ EntityStore = CommentStore{}
)
