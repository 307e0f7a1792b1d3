package engine

import (
	"context"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/metrics"
	"github.com/roach88/circlesync/internal/store"
)

// Pull returns the entries of circleID logged strictly after since.
//
// A nil since starts from the beginning of the log. limit <= 0 selects the
// default page size and larger limits are clamped to the maximum.
// ServerTimestamp is the last returned entry's timestamp, or a fresh clock
// tick when the page is empty, never earlier than since; it is the caller's
// next watermark.
func (e *Engine) Pull(ctx context.Context, circleID, userID string, since *ir.Timestamp, limit int) (*ir.PullResponse, error) {
	if circleID == "" {
		return nil, newValidationError("circleId is required")
	}
	limit = clampPullLimit(limit, e.defaultPull, e.maxPull)

	var resp ir.PullResponse
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		if err := e.requireMember(ctx, q, circleID, userID); err != nil {
			return err
		}

		entries, hasMore, err := e.store.Log().Query(ctx, q, circleID, since, limit)
		if err != nil {
			return newStorageError("pull", err)
		}

		resp.Changes = make([]ir.PushChange, len(entries))
		for i, entry := range entries {
			resp.Changes[i] = entry.PushChange()
		}
		resp.HasMore = hasMore
		if len(entries) > 0 {
			resp.ServerTimestamp = entries[len(entries)-1].Timestamp
		} else {
			resp.ServerTimestamp = e.clock.Next()
			// A since ahead of the clock is kept; watermarks never regress.
			if since != nil && since.After(resp.ServerTimestamp) {
				resp.ServerTimestamp = *since
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObservePull(len(resp.Changes))
	return &resp, nil
}
