package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityTypeValid(t *testing.T) {
	for _, et := range []EntityType{EntityMoment, EntityLetter, EntityComment, EntityMember} {
		assert.True(t, et.Valid(), et)
	}
	assert.False(t, EntityType("world_post").Valid())
	assert.False(t, EntityType("").Valid())
}

func TestEntityTypeTitle(t *testing.T) {
	assert.Equal(t, "Moment", EntityMoment.Title())
	assert.Equal(t, "Letter", EntityLetter.Title())
	assert.Equal(t, "Comment", EntityComment.Title())
	assert.Equal(t, "", EntityType("").Title())
}

func TestParseEntityType(t *testing.T) {
	et, err := ParseEntityType("letter")
	require.NoError(t, err)
	assert.Equal(t, EntityLetter, et)

	_, err = ParseEntityType("album")
	assert.Error(t, err)
}

func TestActionValid(t *testing.T) {
	assert.True(t, ActionCreate.Valid())
	assert.True(t, ActionUpdate.Valid())
	assert.True(t, ActionDelete.Valid())
	assert.False(t, Action("upsert").Valid())
}

func TestChangeEntryPushChange(t *testing.T) {
	entry := ChangeEntry{
		ID:         7,
		CircleID:   "c1",
		EntityType: EntityMoment,
		EntityID:   "m1",
		Action:     ActionCreate,
		Data:       json.RawMessage(`{"content":"hi"}`),
		Timestamp:  MustParseTimestamp("2026-01-02T03:04:05Z"),
	}

	change := entry.PushChange()
	assert.Equal(t, EntityMoment, change.EntityType)
	assert.Equal(t, "m1", change.EntityID)
	assert.Equal(t, ActionCreate, change.Action)
	assert.JSONEq(t, `{"content":"hi"}`, string(change.Data))
	assert.Equal(t, "2026-01-02T03:04:05.000000Z", change.Timestamp)
}

func TestPushChangeJSONShape(t *testing.T) {
	data, err := json.Marshal(PushChange{
		EntityType: EntityLetter,
		EntityID:   "l1",
		Action:     ActionDelete,
		Timestamp:  "2026-01-02T03:04:05.000000Z",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entityType":"letter","entityId":"l1","action":"delete","timestamp":"2026-01-02T03:04:05.000000Z"}`, string(data))
}

func TestPushResponseTally(t *testing.T) {
	resp := PushResponse{Results: []PushResult{
		{EntityID: "a", Status: StatusSuccess},
		{EntityID: "b", Status: StatusConflict},
		{EntityID: "c", Status: StatusError, Message: "Not authorized"},
		{EntityID: "d", Status: StatusSuccess},
	}}
	resp.Tally()
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 1, resp.Conflicts)
	assert.Equal(t, 1, resp.Errors)
}

func TestEntityMetaFlattensIntoJSON(t *testing.T) {
	m := &Moment{
		EntityMeta: EntityMeta{
			ID:        "m1",
			CircleID:  "c1",
			AuthorID:  "u1",
			CreatedAt: MustParseTimestamp("2026-01-01T00:00:00Z"),
			UpdatedAt: MustParseTimestamp("2026-01-01T00:00:00Z"),
		},
		Content:     "hi",
		MediaType:   "text",
		Timestamp:   "2026-01-01T00:00:00.000000Z",
		ContextTags: []ContextTag{},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "m1", decoded["id"])
	assert.Equal(t, "u1", decoded["authorId"])
	assert.NotContains(t, decoded, "deletedAt")
	assert.Equal(t, "m1", m.Meta().ID)
}
