// Package isotime handles the ISO-8601 timestamps exchanged with mobile
// clients. Clients sometimes omit the zone designator; those values are
// read as UTC. All values are normalized to UTC at millisecond precision so
// that what is stored, compared and sent back is byte-for-byte stable.
package isotime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const wireLayout = "2006-01-02T15:04:05.000Z"

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Time is a time.Time with the client wire encoding.
type Time struct {
	time.Time
}

// Normalize converts t to UTC and drops sub-millisecond precision.
func Normalize(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}

// Parse reads an ISO-8601 timestamp, treating zone-less input as UTC.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("isotime: empty timestamp")
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Normalize(t), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("isotime: unrecognized timestamp %q", raw)
}

// Format renders t in the wire layout.
func Format(t time.Time) string {
	return Normalize(t).Format(wireLayout)
}

func New(t time.Time) Time { return Time{Time: Normalize(t)} }

// Ptr converts an optional time to an optional wire time.
func Ptr(t *time.Time) *Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := New(*t)
	return &v
}

// TimePtr converts back to an optional time.Time.
func (t *Time) TimePtr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := Normalize(t.Time)
	return &v
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(Format(t.Time))
}

func (t *Time) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("isotime: timestamp must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
