package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/metrics"
	"github.com/roach88/circlesync/internal/store"
)

// Push applies a batch of client changes to circleID on behalf of userID.
//
// Request-level failures (missing circle id, oversized batch, caller not a
// member) return a *SyncError or *BatchTooLargeError and nothing is applied.
// Otherwise every change is processed in submission order as its own
// transaction and reported in Results; one change's failure never stops the
// batch. When nothing is applied, ServerTimestamp is a fresh tick taken in
// a transaction of its own after the last change.
func (e *Engine) Push(ctx context.Context, circleID, userID string, changes []ir.PushChange) (*ir.PushResponse, error) {
	if circleID == "" {
		return nil, newValidationError("circleId is required")
	}
	if userID == "" {
		return nil, newValidationError("user id is required")
	}
	if err := checkBatchQuota(len(changes), e.maxBatch); err != nil {
		return nil, err
	}
	if err := e.requireMember(ctx, e.store.DB(), circleID, userID); err != nil {
		return nil, err
	}

	metrics.ObservePush(len(changes))

	resp := &ir.PushResponse{Results: make([]ir.PushResult, 0, len(changes))}
	var last *ir.Timestamp
	for _, ch := range changes {
		res, ts := e.applyChange(ctx, circleID, userID, ch)
		resp.Results = append(resp.Results, res)
		if ts != nil {
			last = ts
		}
		metrics.ObserveChange(string(ch.EntityType), string(ch.Action), string(res.Status))
	}
	resp.Tally()

	if last != nil {
		resp.ServerTimestamp = *last
	} else {
		// Ticking inside a transaction orders the watermark after every
		// committed log write, as an applied change's timestamp is.
		err := e.store.WithTx(ctx, func(store.Querier) error {
			resp.ServerTimestamp = e.clock.Next()
			return nil
		})
		if err != nil {
			return nil, newStorageError("push", err)
		}
	}

	e.logger.Info("push reconciled",
		"circle_id", circleID,
		"user_id", userID,
		"processed", resp.Processed,
		"conflicts", resp.Conflicts,
		"errors", resp.Errors)
	return resp, nil
}

// applyChange runs one change through the policy and, when applied, mutates
// the entity and appends its log entry in a single transaction. The returned
// timestamp is set only when a log entry was written.
func (e *Engine) applyChange(ctx context.Context, circleID, userID string, ch ir.PushChange) (ir.PushResult, *ir.Timestamp) {
	res := ir.PushResult{EntityID: ch.EntityID}
	fail := func(msg string) (ir.PushResult, *ir.Timestamp) {
		res.Status, res.Message = ir.StatusError, msg
		return res, nil
	}

	es, ok := e.registry[ch.EntityType]
	if !ok {
		return fail("Unknown entity type: " + string(ch.EntityType))
	}
	if !ch.Action.Valid() {
		return fail("Unknown action: " + string(ch.Action))
	}
	if ch.EntityID == "" {
		return fail("entityId is required")
	}

	var payload ir.Payload
	if ch.Action != ir.ActionDelete {
		p, err := ir.DecodePayload(ch.EntityType, ch.Data)
		if err != nil {
			return fail(err.Error())
		}
		if ch.Action == ir.ActionCreate {
			if err := p.ValidateCreate(); err != nil {
				return fail(err.Error())
			}
		}
		payload = p
	}

	var (
		decision Decision
		applied  *ir.Timestamp
	)
	err := e.store.WithTx(ctx, func(q store.Querier) error {
		found, err := es.FindByID(ctx, q, ch.EntityID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		decision = Decide(ch.Action, scopeExisting(ch.Action, found, circleID), userID)
		if decision != DecisionApply {
			return nil
		}

		ts := e.clock.Next()
		if err := mutate(ctx, q, es, ch, circleID, userID, payload, ts); err != nil {
			return err
		}

		entry := ir.ChangeEntry{
			CircleID:   circleID,
			EntityType: ch.EntityType,
			EntityID:   ch.EntityID,
			Action:     ch.Action,
			Timestamp:  ts,
		}
		if payload != nil {
			data, err := ir.EncodePayload(payload)
			if err != nil {
				return err
			}
			entry.Data = data
		}
		if _, err := e.store.Log().Append(ctx, q, entry); err != nil {
			return err
		}
		applied = &ts
		return nil
	})

	switch {
	case err != nil:
		res.Status, res.Message = outcomeForError(ch.EntityType, err)
		if res.Message == storageFailureMessage {
			e.logger.Warn("change failed",
				"circle_id", circleID,
				"entity_type", ch.EntityType,
				"entity_id", ch.EntityID,
				"action", ch.Action,
				"error", err)
		}
	case decision == DecisionApply:
		res.Status = ir.StatusSuccess
	default:
		res.Status, res.Message = outcomeForDecision(ch.EntityType, ch.Action, decision)
	}

	e.logger.Debug("change processed",
		"circle_id", circleID,
		"entity_type", ch.EntityType,
		"entity_id", ch.EntityID,
		"action", ch.Action,
		"status", res.Status)

	if res.Status != ir.StatusSuccess {
		return res, nil
	}
	return res, applied
}

func mutate(ctx context.Context, q store.Querier, es store.EntityStore, ch ir.PushChange, circleID, userID string, p ir.Payload, ts ir.Timestamp) error {
	switch ch.Action {
	case ir.ActionCreate:
		_, err := es.Create(ctx, q, ch.EntityID, circleID, userID, p, ts)
		return err
	case ir.ActionUpdate:
		_, err := es.UpdateIfOwner(ctx, q, ch.EntityID, userID, p, ts)
		return err
	case ir.ActionDelete:
		return es.SoftDelete(ctx, q, ch.EntityID, userID, ts)
	}
	return fmt.Errorf("unknown action %q", ch.Action)
}

const storageFailureMessage = "Failed to apply change"

func outcomeForDecision(t ir.EntityType, action ir.Action, d Decision) (ir.ChangeStatus, string) {
	switch d {
	case DecisionConflict:
		return ir.StatusConflict, t.Title() + " already exists"
	case DecisionUnauthorized:
		return ir.StatusError, "Not authorized"
	case DecisionNotFound:
		return ir.StatusError, t.Title() + " not found"
	}
	return ir.StatusError, "Unknown action: " + string(action)
}

// outcomeForError maps a failed mutation to a per-change result.
// Unrecognized errors are storage failures and get a generic message.
func outcomeForError(t ir.EntityType, err error) (ir.ChangeStatus, string) {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return ir.StatusConflict, t.Title() + " already exists"
	case errors.Is(err, store.ErrNotFound):
		return ir.StatusError, t.Title() + " not found"
	case errors.Is(err, store.ErrUnauthorized):
		return ir.StatusError, "Not authorized"
	case errors.Is(err, store.ErrLetterNotDraft):
		return ir.StatusError, "Cannot edit sealed letter"
	case errors.Is(err, store.ErrTargetNotFound):
		return ir.StatusError, "Comment target not found"
	}
	return ir.StatusError, storageFailureMessage
}
