package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/circlesync/internal/ir"
)

func TestFullSync(t *testing.T) {
	f := newFixture(t)
	f.push(t, "u1",
		change(ir.EntityMoment, "m1", ir.ActionCreate, `{"content":"kept"}`),
		change(ir.EntityMoment, "m2", ir.ActionCreate, `{"content":"removed"}`),
		change(ir.EntityLetter, "l1", ir.ActionCreate, `{"title":"Hello","content":"Dear future us"}`),
		change(ir.EntityLetter, "l2", ir.ActionCreate, `{"title":"Scrapped"}`),
	)
	f.push(t, "u2",
		change(ir.EntityComment, "k1", ir.ActionCreate, `{"targetId":"m1","content":"love it"}`),
		change(ir.EntityComment, "k2", ir.ActionCreate, `{"targetId":"m2","content":"hmm"}`),
	)
	f.push(t, "u1",
		change(ir.EntityMoment, "m2", ir.ActionDelete, ""),
		change(ir.EntityLetter, "l2", ir.ActionDelete, ""),
	)
	logBefore := len(f.fullLog(t))

	snap, err := f.eng.FullSync(f.ctx, "c1", "u2")
	require.NoError(t, err)

	assert.Equal(t, "c1", snap.Circle.ID)
	assert.Equal(t, "Family", snap.Circle.Name)
	require.Len(t, snap.Members, 2)
	assert.Equal(t, "u1", snap.Members[0].UserID)
	assert.Equal(t, ir.RoleAdmin, snap.Members[0].Role)

	require.Len(t, snap.Moments, 1)
	assert.Equal(t, "m1", snap.Moments[0].ID)
	require.Len(t, snap.Letters, 1)
	assert.Equal(t, "l1", snap.Letters[0].ID)
	assert.Equal(t, ir.LetterDraft, snap.Letters[0].Status)
	require.Len(t, snap.Comments, 1, "comments on deleted moments are left out")
	assert.Equal(t, "k1", snap.Comments[0].ID)

	assert.Equal(t, f.clock.Current().String(), snap.ServerTimestamp.String())
	assert.Len(t, f.fullLog(t), logBefore, "full sync never writes the log")
}

func TestFullSync_RequestLevelErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.FullSync(f.ctx, "", "u1")
	assert.True(t, IsValidationError(err))

	_, err = f.eng.FullSync(f.ctx, "c1", "u3")
	assert.True(t, IsForbidden(err))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.push(t, "u1", change(ir.EntityMoment, "m1", ir.ActionCreate, `{"content":"hi"}`))

	st, err := f.eng.Status(f.ctx, "u2")
	require.NoError(t, err)
	require.Len(t, st.Circles, 1)
	assert.Equal(t, "c1", st.Circles[0].CircleID)
	assert.Equal(t, "Family", st.Circles[0].Name)
	require.NotNil(t, st.Circles[0].LastSync)
	assert.Equal(t, "2026-01-01T00:00:06.000000Z", st.Circles[0].LastSync.String())
	assert.Equal(t, "2026-01-01T00:00:07.000000Z", st.ServerTimestamp.String())

	none, err := f.eng.Status(f.ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, none.Circles)
}
