package ir

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the fixed-width form of every server timestamp.
// Fixed width keeps lexical comparison in SQLite equal to time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp is a server-assigned instant with microsecond precision in UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to microseconds and converts it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// ParseTimestamp accepts any RFC 3339 value and normalizes it.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return NewTimestamp(t), nil
}

// NormalizeTimestamp rewrites an RFC 3339 value in the fixed-width UTC form,
// so that stored timestamps sort chronologically as text.
func NormalizeTimestamp(s string) (string, error) {
	ts, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return ts.String(), nil
}

// MustParseTimestamp is ParseTimestamp for tests and constants.
func MustParseTimestamp(s string) Timestamp {
	ts, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return ts
}

// String returns the fixed-width text form.
func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// After reports whether t is strictly later than u.
func (t Timestamp) After(u Timestamp) bool {
	return t.Time.After(u.Time)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer; timestamps are stored as TEXT.
func (t Timestamp) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseTimestamp(v)
		if err != nil {
			return err
		}
		*t = parsed
	case []byte:
		parsed, err := ParseTimestamp(string(v))
		if err != nil {
			return err
		}
		*t = parsed
	case time.Time:
		*t = NewTimestamp(v)
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
	return nil
}
