package model

import (
	"fmt"
	"strconv"
	"time"
)

// TimeLayout is the wire format used for every timestamp in the persisted
// JSON files.
const TimeLayout = "2006-01-02 15:04:05"

// Timestamp is a local wall-clock time that marshals as "YYYY-MM-DD HH:MM:SS".
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to second precision, matching the wire format.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.Truncate(time.Second)}
}

// MarshalJSON encodes the timestamp using TimeLayout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Format(TimeLayout))), nil
}

// UnmarshalJSON parses a TimeLayout string. The wire format carries no zone,
// so the decoded value is provisional until a reader anchors it with
// InLocation.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("timestamp is not a JSON string: %w", err)
	}
	parsed, err := time.ParseInLocation(TimeLayout, raw, time.Local)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// InLocation reinterprets the wall-clock reading in loc. The stores call this
// on load so triggers compare against the configured timezone, not whatever
// zone the process happens to run in.
func (t Timestamp) InLocation(loc *time.Location) Timestamp {
	return Timestamp{time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)}
}

// Reminder is one scheduled dose notification for a WhatsApp user. A medicine
// usually owns several reminders, one per daily slot, and the whole group is
// replaced together when the medicine is re-ingested.
type Reminder struct {
	ChatID    string    `json:"chat_id"`
	Medicine  string    `json:"medicine"`
	Dosage    string    `json:"dosage"`
	Message   string    `json:"message"`
	Time      Timestamp `json:"time"`
	CreatedAt Timestamp `json:"created_at"`
}
