package engine

import "github.com/roach88/circlesync/internal/ir"

// Decision is the conflict policy's verdict for one incoming change.
type Decision string

const (
	DecisionApply        Decision = "apply"
	DecisionConflict     Decision = "conflict"
	DecisionUnauthorized Decision = "unauthorized"
	DecisionNotFound     Decision = "not_found"
	// DecisionInvalid is returned only for actions outside create/update/delete.
	DecisionInvalid Decision = "invalid"
)

// Decide evaluates one change against the current entity state.
// It has no side effects.
//
// existing is the entity the change targets, or nil when there is none.
// For update and delete the caller passes nil for soft-deleted entities and
// for entities of another circle; for create it passes whatever holds the id.
//
// There is no merge: two authors can never touch the same entity, and
// edits by the same author apply in arrival order.
func Decide(action ir.Action, existing *ir.EntityMeta, submittedBy string) Decision {
	switch action {
	case ir.ActionCreate:
		if existing != nil {
			return DecisionConflict
		}
		return DecisionApply
	case ir.ActionUpdate, ir.ActionDelete:
		if existing == nil {
			return DecisionNotFound
		}
		if existing.AuthorID != submittedBy {
			return DecisionUnauthorized
		}
		return DecisionApply
	default:
		return DecisionInvalid
	}
}

// scopeExisting narrows a lookup result to what Decide should see.
func scopeExisting(action ir.Action, found ir.Entity, circleID string) *ir.EntityMeta {
	if found == nil {
		return nil
	}
	meta := found.Meta()
	if action == ir.ActionCreate {
		return &meta
	}
	if meta.CircleID != circleID || meta.Deleted() {
		return nil
	}
	return &meta
}
