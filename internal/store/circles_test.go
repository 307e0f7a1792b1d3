package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circlesync/internal/ir"
)

func TestUsers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	cs := s.Circles()

	require.NoError(t, cs.InsertUser(ctx, s.DB(), ir.User{ID: "u1", Email: "a@example.com", Name: "Ana", CreatedAt: testEpoch}))
	assert.ErrorIs(t, cs.InsertUser(ctx, s.DB(), ir.User{ID: "u1", Email: "b@example.com", Name: "Bo", CreatedAt: testEpoch}), ErrAlreadyExists)
	assert.ErrorIs(t, cs.InsertUser(ctx, s.DB(), ir.User{ID: "u9", Email: "a@example.com", Name: "Copy", CreatedAt: testEpoch}), ErrAlreadyExists)

	u, err := cs.GetUser(ctx, s.DB(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Nil(t, u.Avatar)

	_, err = cs.GetUser(ctx, s.DB(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMembership(t *testing.T) {
	s := createTestStore(t)
	seedCircle(t, s)
	ctx := context.Background()
	cs := s.Circles()

	ok, err := cs.IsMember(ctx, s.DB(), "c1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cs.IsMember(ctx, s.DB(), "c1", "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, cs.RequireMember(ctx, s.DB(), "c1", "u1"))
	assert.ErrorIs(t, cs.RequireMember(ctx, s.DB(), "c1", "stranger"), ErrNotMember)

	assert.ErrorIs(t, cs.InsertMember(ctx, s.DB(), "c1", "u2", ir.RoleMember, at(2)), ErrAlreadyExists)

	members, err := cs.ListMembers(ctx, s.DB(), "c1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "u1", members[0].UserID)
	assert.Equal(t, ir.RoleAdmin, members[0].Role)
	assert.Equal(t, "u1@example.com", members[0].Email)

	require.NoError(t, cs.DeleteMember(ctx, s.DB(), "c1", "u2"))
	assert.ErrorIs(t, cs.DeleteMember(ctx, s.DB(), "c1", "u2"), ErrNotFound)
}

func TestCircles(t *testing.T) {
	s := createTestStore(t)
	seedCircle(t, s)
	ctx := context.Background()
	cs := s.Circles()

	c, err := cs.GetCircle(ctx, s.DB(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Family", c.Name)
	assert.Equal(t, "u1", c.CreatedBy)

	_, err = cs.GetCircle(ctx, s.DB(), "c404")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, cs.InsertCircle(ctx, s.DB(), *c), ErrAlreadyExists)
}

func TestListUserCircles(t *testing.T) {
	s := createTestStore(t)
	seedCircle(t, s)
	ctx := context.Background()
	cs := s.Circles()

	require.NoError(t, cs.InsertCircle(ctx, s.DB(), ir.Circle{ID: "c2", Name: "Work", CreatedBy: "u1", CreatedAt: at(3), UpdatedAt: at(3)}))
	require.NoError(t, cs.InsertMember(ctx, s.DB(), "c2", "u1", ir.RoleAdmin, at(3)))
	_, err := s.Log().Append(ctx, s.DB(), testEntry("m1", ir.ActionCreate, at(40)))
	require.NoError(t, err)

	statuses, err := cs.ListUserCircles(ctx, s.DB(), "u1")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "c1", statuses[0].CircleID)
	require.NotNil(t, statuses[0].LastSync)
	assert.Equal(t, at(40).String(), statuses[0].LastSync.String())
	assert.Equal(t, "c2", statuses[1].CircleID)
	assert.Nil(t, statuses[1].LastSync)

	statuses, err = cs.ListUserCircles(ctx, s.DB(), "u2")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
}
