package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/circlesync/internal/ir"
	"github.com/roach88/circlesync/internal/store"
	"github.com/roach88/circlesync/internal/testutil"
)

// afterSetup is the clock reading once newFixture has seeded its circle:
// three users (ticks 1-3), circle c1 with admin u1 (tick 4), member u2 (tick 5).
const afterSetup = "2026-01-01T00:00:05.000000Z"

type fixture struct {
	ctx   context.Context
	store *store.Store
	clock *testutil.DeterministicClock
	eng   *Engine
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newFixture builds an engine on a deterministic clock with users u1, u2, u3
// and circle c1 ("Family") where u1 is admin and u2 a member. u3 belongs to
// no circle.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: setupTestStore(t),
		clock: testutil.NewDeterministicClock(),
	}

	all := append([]Option{
		WithClock(f.clock),
		WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
	}, opts...)
	eng, err := New(f.ctx, f.store, all...)
	require.NoError(t, err)
	f.eng = eng

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := eng.CreateUser(f.ctx, ir.User{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
	_, err = eng.CreateCircle(f.ctx, ir.Circle{ID: "c1", Name: "Family"}, "u1")
	require.NoError(t, err)
	require.NoError(t, eng.AddMember(f.ctx, "c1", "u2", ir.RoleMember))
	require.Equal(t, afterSetup, f.clock.Current().String())
	return f
}

func change(t ir.EntityType, id string, action ir.Action, data string) ir.PushChange {
	ch := ir.PushChange{EntityType: t, EntityID: id, Action: action}
	if data != "" {
		ch.Data = json.RawMessage(data)
	}
	return ch
}

func (f *fixture) push(t *testing.T, userID string, changes ...ir.PushChange) *ir.PushResponse {
	t.Helper()
	resp, err := f.eng.Push(f.ctx, "c1", userID, changes)
	require.NoError(t, err)
	require.Len(t, resp.Results, len(changes))
	return resp
}

func (f *fixture) find(t *testing.T, et ir.EntityType, id string) ir.Entity {
	t.Helper()
	es, ok := f.eng.EntityStore(et)
	require.True(t, ok)
	e, err := es.FindByID(f.ctx, f.store.DB(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) moment(t *testing.T, id string) *ir.Moment {
	t.Helper()
	return f.find(t, ir.EntityMoment, id).(*ir.Moment)
}

func (f *fixture) logFor(t *testing.T, et ir.EntityType, id string) []ir.ChangeEntry {
	t.Helper()
	entries, err := f.store.Log().ForEntity(f.ctx, f.store.DB(), et, id)
	require.NoError(t, err)
	return entries
}

func (f *fixture) fullLog(t *testing.T) []ir.ChangeEntry {
	t.Helper()
	entries, err := f.store.Log().All(f.ctx, f.store.DB(), "c1")
	require.NoError(t, err)
	return entries
}

func ts(s string) *ir.Timestamp {
	v := ir.MustParseTimestamp(s)
	return &v
}
