package engine

import (
	"context"
	"errors"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/metrics"
	"github.com/roach88/circlesync/internal/store"
)

// FullSync returns the current state of a circle for clients with no
// watermark: live moments and letters, and comments on live moments.
//
// All reads happen in one transaction. The log is neither read nor written;
// clients continue with Pull from ServerTimestamp.
func (e *Engine) FullSync(ctx context.Context, circleID, userID string) (*ir.Snapshot, error) {
	if circleID == "" {
		return nil, newValidationError("circleId is required")
	}

	var snap ir.Snapshot
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		if err := e.requireMember(ctx, q, circleID, userID); err != nil {
			return err
		}

		circle, err := e.store.Circles().GetCircle(ctx, q, circleID)
		if errors.Is(err, store.ErrNotFound) {
			return &SyncError{Code: ErrCodeNotFound, Message: "circle not found", Err: err}
		}
		if err != nil {
			return newStorageError("full sync", err)
		}
		snap.Circle = *circle

		if snap.Members, err = e.store.Circles().ListMembers(ctx, q, circleID); err != nil {
			return newStorageError("full sync", err)
		}
		if snap.Moments, err = e.store.Moments().ListLive(ctx, q, circleID); err != nil {
			return newStorageError("full sync", err)
		}
		if snap.Letters, err = e.store.Letters().ListLive(ctx, q, circleID); err != nil {
			return newStorageError("full sync", err)
		}
		if snap.Comments, err = e.store.Comments().ListOnLiveMoments(ctx, q, circleID); err != nil {
			return newStorageError("full sync", err)
		}

		snap.ServerTimestamp = e.clock.Next()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveSnapshot()
	return &snap, nil
}

// Status lists the circles of userID with each circle's newest log timestamp.
func (e *Engine) Status(ctx context.Context, userID string) (*ir.StatusResponse, error) {
	var resp ir.StatusResponse
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		circles, err := e.store.Circles().ListUserCircles(ctx, q, userID)
		if err != nil {
			return newStorageError("status", err)
		}
		resp.Circles = circles
		resp.ServerTimestamp = e.clock.Next()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
