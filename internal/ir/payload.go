package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Payload is the tagged union of per-entity-type change data.
// Every field of a variant is optional so that updates are partial:
// a nil field leaves the stored value untouched.
type Payload interface {
	EntityType() EntityType
	// ValidateCreate checks the fields a create cannot do without.
	ValidateCreate() error
}

// ContextTag annotates a moment ("weather", "Sunny", "☀️").
type ContextTag struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// MomentData carries moment fields.
type MomentData struct {
	Content       *string       `json:"content,omitempty"`
	MediaType     *string       `json:"mediaType,omitempty"`
	MediaURL      *string       `json:"mediaUrl,omitempty"`
	Timestamp     *string       `json:"timestamp,omitempty"`
	TimeLabel     *string       `json:"timeLabel,omitempty"`
	ContextTags   *[]ContextTag `json:"contextTags,omitempty"`
	Location      *string       `json:"location,omitempty"`
	IsFavorite    *bool         `json:"isFavorite,omitempty"`
	FutureMessage *string       `json:"futureMessage,omitempty"`
}

func (*MomentData) EntityType() EntityType { return EntityMoment }

func (d *MomentData) ValidateCreate() error {
	if d.Content == nil || *d.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// LetterData carries letter fields. Status is never accepted from clients.
type LetterData struct {
	Title      *string `json:"title,omitempty"`
	Preview    *string `json:"preview,omitempty"`
	Content    *string `json:"content,omitempty"`
	Type       *string `json:"type,omitempty"`
	Recipient  *string `json:"recipient,omitempty"`
	UnlockDate *string `json:"unlockDate,omitempty"`
}

func (*LetterData) EntityType() EntityType { return EntityLetter }

func (d *LetterData) ValidateCreate() error {
	if d.Title == nil || *d.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

// PreviewLength is the number of characters of content used as a default preview.
const PreviewLength = 100

// DerivedPreview returns the explicit preview, or one derived from content.
func (d *LetterData) DerivedPreview() string {
	if d.Preview != nil && *d.Preview != "" {
		return *d.Preview
	}
	if d.Content == nil {
		return ""
	}
	if utf8.RuneCountInString(*d.Content) <= PreviewLength {
		return *d.Content
	}
	return string([]rune(*d.Content)[:PreviewLength]) + "..."
}

// CommentData carries comment fields.
type CommentData struct {
	TargetID   *string `json:"targetId,omitempty"`
	TargetType *string `json:"targetType,omitempty"`
	Content    *string `json:"content,omitempty"`
	ReplyToID  *string `json:"replyToId,omitempty"`
}

func (*CommentData) EntityType() EntityType { return EntityComment }

func (d *CommentData) ValidateCreate() error {
	if d.TargetID == nil || *d.TargetID == "" {
		return errors.New("targetId is required")
	}
	if d.Content == nil || *d.Content == "" {
		return errors.New("content is required")
	}
	if d.TargetType != nil && *d.TargetType != "moment" {
		return fmt.Errorf("unsupported targetType %q", *d.TargetType)
	}
	return nil
}

// MemberData is logged by membership changes.
type MemberData struct {
	UserID string `json:"userId"`
	Role   string `json:"role,omitempty"`
}

func (*MemberData) EntityType() EntityType { return EntityMember }

func (d *MemberData) ValidateCreate() error {
	if d.UserID == "" {
		return errors.New("userId is required")
	}
	return nil
}

// NewPayload returns an empty variant for t.
func NewPayload(t EntityType) (Payload, error) {
	switch t {
	case EntityMoment:
		return &MomentData{}, nil
	case EntityLetter:
		return &LetterData{}, nil
	case EntityComment:
		return &CommentData{}, nil
	case EntityMember:
		return &MemberData{}, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", t)
}

// DecodePayload decodes raw change data into the variant selected by t.
// Absent or null data yields an empty variant. Explicit nulls inside the
// object decode as absent fields.
func DecodePayload(t EntityType, raw json.RawMessage) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%s data must be an object", t)
	}
	if err := json.Unmarshal(trimmed, p); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", t, err)
	}
	if m, ok := p.(*MomentData); ok && m.Timestamp != nil {
		ts, err := NormalizeTimestamp(*m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid %s data: %w", t, err)
		}
		m.Timestamp = &ts
	}
	return p, nil
}

// EncodePayload renders p as canonical JSON for the change log.
func EncodePayload(p Payload) (json.RawMessage, error) {
	plain, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", p.EntityType(), err)
	}
	return CanonicalizeJSON(plain)
}
