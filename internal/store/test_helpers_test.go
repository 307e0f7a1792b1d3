package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/circlesync/internal/ir"
)

var testEpoch = ir.MustParseTimestamp("2026-01-01T00:00:00Z")

// createTestStore opens a fresh database in the test's temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedCircle creates users u1 and u2 and circle c1 with both as members.
func seedCircle(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	cs := s.Circles()
	for _, id := range []string{"u1", "u2"} {
		if err := cs.InsertUser(ctx, s.DB(), ir.User{ID: id, Email: id + "@example.com", Name: id, CreatedAt: testEpoch}); err != nil {
			t.Fatalf("InsertUser(%s) failed: %v", id, err)
		}
	}
	if err := cs.InsertCircle(ctx, s.DB(), ir.Circle{ID: "c1", Name: "Family", CreatedBy: "u1", CreatedAt: testEpoch, UpdatedAt: testEpoch}); err != nil {
		t.Fatalf("InsertCircle failed: %v", err)
	}
	if err := cs.InsertMember(ctx, s.DB(), "c1", "u1", ir.RoleAdmin, testEpoch); err != nil {
		t.Fatalf("InsertMember(u1) failed: %v", err)
	}
	if err := cs.InsertMember(ctx, s.DB(), "c1", "u2", ir.RoleMember, at(1)); err != nil {
		t.Fatalf("InsertMember(u2) failed: %v", err)
	}
}

// at returns testEpoch plus n seconds.
func at(n int) ir.Timestamp {
	return ir.NewTimestamp(testEpoch.Add(time.Duration(n) * time.Second))
}

// testEntry builds a moment log entry for circle c1.
func testEntry(entityID string, action ir.Action, ts ir.Timestamp) ir.ChangeEntry {
	return ir.ChangeEntry{
		CircleID:   "c1",
		EntityType: ir.EntityMoment,
		EntityID:   entityID,
		Action:     action,
		Timestamp:  ts,
	}
}

func ptr[T any](v T) *T { return &v }
