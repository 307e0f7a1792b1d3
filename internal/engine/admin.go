package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/store"
)

// Administrative mutations. These are the direct paths next to Push; the
// ones that change synced state append to the same change log, in the same
// transaction, exactly as the reconciler does.

// CreateUser registers a user. An empty u.ID is generated.
func (e *Engine) CreateUser(ctx context.Context, u ir.User) (*ir.User, error) {
	if u.Name == "" || u.Email == "" {
		return nil, newValidationError("name and email are required")
	}
	if u.ID == "" {
		u.ID = e.ids.Generate()
	}

	err := e.store.WithTx(ctx, func(q store.Querier) error {
		u.CreatedAt = e.clock.Next()
		return e.store.Circles().InsertUser(ctx, q, u)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, &SyncError{Code: ErrCodeConflict, Message: "user id or email already registered", Err: err}
	}
	if err != nil {
		return nil, newStorageError("create user", err)
	}
	return &u, nil
}

// CreateCircle creates a circle with creatorID as its admin. The admin
// membership is logged as a member create.
func (e *Engine) CreateCircle(ctx context.Context, c ir.Circle, creatorID string) (*ir.Circle, error) {
	if c.Name == "" {
		return nil, newValidationError("circle name is required")
	}
	if c.ID == "" {
		c.ID = e.ids.Generate()
	}
	c.CreatedBy = creatorID

	err := e.store.WithTx(ctx, func(q store.Querier) error {
		if err := e.requireUser(ctx, q, creatorID); err != nil {
			return err
		}
		ts := e.clock.Next()
		c.CreatedAt, c.UpdatedAt = ts, ts
		if err := e.store.Circles().InsertCircle(ctx, q, c); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return &SyncError{Code: ErrCodeConflict, Message: "circle already exists", Err: err}
			}
			return newStorageError("create circle", err)
		}
		return e.insertMember(ctx, q, c.ID, creatorID, ir.RoleAdmin, ts)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AddMember adds userID to circleID. An empty role means member.
func (e *Engine) AddMember(ctx context.Context, circleID, userID, role string) error {
	if role == "" {
		role = ir.RoleMember
	}
	if role != ir.RoleAdmin && role != ir.RoleMember {
		return newValidationError("role must be %s or %s", ir.RoleAdmin, ir.RoleMember)
	}

	return e.store.WithTx(ctx, func(q store.Querier) error {
		if _, err := e.store.Circles().GetCircle(ctx, q, circleID); err != nil {
			return notFoundOrStorage("circle", err)
		}
		if err := e.requireUser(ctx, q, userID); err != nil {
			return err
		}
		return e.insertMember(ctx, q, circleID, userID, role, e.clock.Next())
	})
}

// RemoveMember removes userID from circleID and logs a member delete.
// Entities the user authored stay in the circle.
func (e *Engine) RemoveMember(ctx context.Context, circleID, userID string) error {
	return e.store.WithTx(ctx, func(q store.Querier) error {
		if err := e.store.Circles().DeleteMember(ctx, q, circleID, userID); err != nil {
			return notFoundOrStorage("membership", err)
		}
		return e.appendAdmin(ctx, q, ir.ChangeEntry{
			CircleID:   circleID,
			EntityType: ir.EntityMember,
			EntityID:   userID,
			Action:     ir.ActionDelete,
			Timestamp:  e.clock.Next(),
		})
	})
}

// SealLetter moves a draft letter authored by authorID to sealed and logs a
// letter update carrying the new status.
func (e *Engine) SealLetter(ctx context.Context, letterID, authorID string, unlockDate *string) (*ir.Letter, error) {
	var sealed *ir.Letter
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		ts := e.clock.Next()
		l, err := e.store.Letters().Seal(ctx, q, letterID, authorID, unlockDate, ts)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return &SyncError{Code: ErrCodeNotFound, Message: "Letter not found", Err: err}
		case errors.Is(err, store.ErrUnauthorized):
			return &SyncError{Code: ErrCodeForbidden, Message: "Not authorized", Err: err}
		case errors.Is(err, store.ErrLetterNotDraft):
			return &SyncError{Code: ErrCodeConflict, Message: "Letter is already sealed", Err: err}
		case err != nil:
			return newStorageError("seal letter", err)
		}

		fields := map[string]any{"status": l.Status}
		if l.UnlockDate != nil {
			fields["unlockDate"] = *l.UnlockDate
		}
		data, err := ir.MarshalCanonical(fields)
		if err != nil {
			return newStorageError("seal letter", err)
		}

		sealed = l
		return e.appendAdmin(ctx, q, ir.ChangeEntry{
			CircleID:   l.CircleID,
			EntityType: ir.EntityLetter,
			EntityID:   l.ID,
			Action:     ir.ActionUpdate,
			Data:       data,
			Timestamp:  ts,
		})
	})
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

func (e *Engine) insertMember(ctx context.Context, q store.Querier, circleID, userID, role string, ts ir.Timestamp) error {
	if err := e.store.Circles().InsertMember(ctx, q, circleID, userID, role, ts); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return &SyncError{Code: ErrCodeConflict, Message: "already a member", Err: err}
		}
		return newStorageError("add member", err)
	}

	data, err := ir.EncodePayload(&ir.MemberData{UserID: userID, Role: role})
	if err != nil {
		return newStorageError("add member", err)
	}
	return e.appendAdmin(ctx, q, ir.ChangeEntry{
		CircleID:   circleID,
		EntityType: ir.EntityMember,
		EntityID:   userID,
		Action:     ir.ActionCreate,
		Data:       data,
		Timestamp:  ts,
	})
}

func (e *Engine) appendAdmin(ctx context.Context, q store.Querier, entry ir.ChangeEntry) error {
	if _, err := e.store.Log().Append(ctx, q, entry); err != nil {
		return newStorageError("append change", err)
	}
	e.logger.Info("admin change logged",
		"circle_id", entry.CircleID,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
		"action", entry.Action)
	return nil
}

func (e *Engine) requireUser(ctx context.Context, q store.Querier, userID string) error {
	if _, err := e.store.Circles().GetUser(ctx, q, userID); err != nil {
		return notFoundOrStorage("user", err)
	}
	return nil
}

func notFoundOrStorage(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &SyncError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", what), Err: err}
	}
	return newStorageError("lookup "+what, err)
}

// User returns a registered user. Used by the authentication layer.
func (e *Engine) User(ctx context.Context, userID string) (*ir.User, error) {
	u, err := e.store.Circles().GetUser(ctx, e.store.DB(), userID)
	if err != nil {
		return nil, notFoundOrStorage("user", err)
	}
	return u, nil
}
