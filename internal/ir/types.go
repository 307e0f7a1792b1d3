package ir

import "fmt"

// EntityType tags the kind of entity a change refers to.
type EntityType string

const (
	EntityMoment  EntityType = "moment"
	EntityLetter  EntityType = "letter"
	EntityComment EntityType = "comment"
	EntityMember  EntityType = "member"
)

// SyncedEntityTypes are the entity types clients may push.
// Member entries are written by administrative mutations only.
var SyncedEntityTypes = []EntityType{EntityMoment, EntityLetter, EntityComment}

// Valid reports whether t is a known entity type, including member.
func (t EntityType) Valid() bool {
	switch t {
	case EntityMoment, EntityLetter, EntityComment, EntityMember:
		return true
	}
	return false
}

// Title returns the capitalized name used in result messages ("Moment").
func (t EntityType) Title() string {
	if t == "" {
		return ""
	}
	s := string(t)
	return string(s[0]-'a'+'A') + s[1:]
}

// Action is the mutation a change log entry or push change describes.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of create, update or delete.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ChangeStatus is the per-change outcome reported to a pushing client.
type ChangeStatus string

const (
	StatusSuccess  ChangeStatus = "success"
	StatusConflict ChangeStatus = "conflict"
	StatusError    ChangeStatus = "error"
)

// ParseEntityType converts s to an EntityType, rejecting unknown tags.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}
