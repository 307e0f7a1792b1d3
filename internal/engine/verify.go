package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/store"
)

// Issue is one inconsistency between a circle's log and its entity state.
type Issue struct {
	EntityType ir.EntityType `json:"entityType,omitempty"`
	EntityID   string        `json:"entityId,omitempty"`
	Message    string        `json:"message"`
}

// VerifyReport summarizes a consistency check of one circle.
type VerifyReport struct {
	CircleID string  `json:"circleId"`
	Entries  int     `json:"entries"`
	Entities int     `json:"entities"`
	Issues   []Issue `json:"issues"`
}

// OK reports whether no issues were found.
func (r *VerifyReport) OK() bool {
	return len(r.Issues) == 0
}

type entityKey struct {
	t  ir.EntityType
	id string
}

// Verify checks that the change log of circleID accounts for its entity
// state:
//   - log timestamps are strictly increasing
//   - every stored entity has a create entry
//   - an entity is soft-deleted exactly when a delete entry exists
//   - every created entity still exists
//   - the last member entry of each user matches current membership
//
// Verify only reads; it never repairs.
func (e *Engine) Verify(ctx context.Context, circleID string) (*VerifyReport, error) {
	report := &VerifyReport{CircleID: circleID, Issues: []Issue{}}

	err := e.store.WithTx(ctx, func(q store.Querier) error {
		if _, err := e.store.Circles().GetCircle(ctx, q, circleID); err != nil {
			return notFoundOrStorage("circle", err)
		}

		entries, err := e.store.Log().All(ctx, q, circleID)
		if err != nil {
			return newStorageError("verify", err)
		}
		report.Entries = len(entries)

		actions := make(map[entityKey][]ir.Action)
		var keys []entityKey
		for i, entry := range entries {
			if i > 0 && !entry.Timestamp.After(entries[i-1].Timestamp) {
				report.add(entry.EntityType, entry.EntityID,
					fmt.Sprintf("timestamp %s does not follow %s", entry.Timestamp, entries[i-1].Timestamp))
			}
			k := entityKey{entry.EntityType, entry.EntityID}
			if _, seen := actions[k]; !seen {
				keys = append(keys, k)
			}
			actions[k] = append(actions[k], entry.Action)
		}

		stored := make(map[entityKey]bool)
		for _, t := range ir.SyncedEntityTypes {
			metas, err := e.registry[t].ListMeta(ctx, q, circleID)
			if err != nil {
				return newStorageError("verify", err)
			}
			report.Entities += len(metas)
			for _, m := range metas {
				k := entityKey{t, m.ID}
				stored[k] = true
				checkEntity(report, k, m, actions[k])
			}
		}

		for _, k := range keys {
			if k.t == ir.EntityMember {
				continue
			}
			if !stored[k] && contains(actions[k], ir.ActionCreate) {
				report.add(k.t, k.id, "create logged but entity is missing")
			}
		}

		return e.verifyMembers(ctx, q, circleID, actions, keys, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func checkEntity(r *VerifyReport, k entityKey, m ir.EntityMeta, logged []ir.Action) {
	if !contains(logged, ir.ActionCreate) {
		r.add(k.t, k.id, "entity has no create entry")
	}
	deleteLogged := contains(logged, ir.ActionDelete)
	switch {
	case m.Deleted() && !deleteLogged:
		r.add(k.t, k.id, "entity is deleted but no delete entry exists")
	case !m.Deleted() && deleteLogged:
		r.add(k.t, k.id, "delete logged but entity is live")
	}
}

func (e *Engine) verifyMembers(ctx context.Context, q store.Querier, circleID string, actions map[entityKey][]ir.Action, keys []entityKey, r *VerifyReport) error {
	members, err := e.store.Circles().ListMembers(ctx, q, circleID)
	if err != nil {
		return newStorageError("verify", err)
	}
	current := make(map[string]bool, len(members))
	for _, m := range members {
		current[m.UserID] = true
	}

	memberIDs := make([]string, 0, len(members))
	for id := range current {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)
	for _, id := range memberIDs {
		logged := actions[entityKey{ir.EntityMember, id}]
		if len(logged) == 0 || logged[len(logged)-1] != ir.ActionCreate {
			r.add(ir.EntityMember, id, "member has no current create entry")
		}
	}

	for _, k := range keys {
		if k.t != ir.EntityMember || current[k.id] {
			continue
		}
		logged := actions[k]
		if logged[len(logged)-1] == ir.ActionCreate {
			r.add(k.t, k.id, "membership logged but user is not a member")
		}
	}
	return nil
}

func (r *VerifyReport) add(t ir.EntityType, id, msg string) {
	r.Issues = append(r.Issues, Issue{EntityType: t, EntityID: id, Message: msg})
}

func contains(actions []ir.Action, a ir.Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
