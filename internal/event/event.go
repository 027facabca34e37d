package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event is an immutable, timestamped fact about a story's lifecycle.
//
// The JSON form matches the records kept in the event log:
//
//	{"tracker_id":"1234567","event":"start","dev_name":"Person",
//	 "points":"2","reason":null,"extended_reason":null,"created_at":1460469660}
type Event struct {
	// Key is the identifier assigned by the store on append.
	// It is not part of the stored payload.
	Key string

	TrackerID      string
	Kind           Kind
	Developer      string
	Points         decimal.NullDecimal
	Reason         string
	ExtendedReason string

	// CreatedAt has seconds precision.
	CreatedAt time.Time
}

// wireEvent is the stored representation. Optional text fields are pointers
// so that absent values round-trip as null.
type wireEvent struct {
	TrackerID      json.RawMessage     `json:"tracker_id"`
	Kind           string              `json:"event"`
	Developer      string              `json:"dev_name,omitempty"`
	Points         decimal.NullDecimal `json:"points"`
	Reason         *string             `json:"reason"`
	ExtendedReason *string             `json:"extended_reason"`
	CreatedAt      int64               `json:"created_at"`
}

// MarshalJSON encodes the event in its stored form.
func (e Event) MarshalJSON() ([]byte, error) {
	id, err := json.Marshal(e.TrackerID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		TrackerID:      id,
		Kind:           string(e.Kind),
		Developer:      e.Developer,
		Points:         e.Points,
		Reason:         optional(e.Reason),
		ExtendedReason: optional(e.ExtendedReason),
		CreatedAt:      e.CreatedAt.Unix(),
	})
}

// UnmarshalJSON decodes the stored form. Tracker ids written as numbers by
// older clients are accepted and normalised to strings.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, err := trackerID(w.TrackerID)
	if err != nil {
		return err
	}

	*e = Event{
		Key:            e.Key,
		TrackerID:      id,
		Kind:           Kind(w.Kind),
		Developer:      w.Developer,
		Points:         w.Points,
		Reason:         deref(w.Reason),
		ExtendedReason: deref(w.ExtendedReason),
		CreatedAt:      time.Unix(w.CreatedAt, 0),
	}
	return nil
}

func trackerID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid tracker_id %s: %w", raw, err)
	}
	return n.String(), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Is reports whether the event is of kind k.
func (e Event) Is(k Kind) bool {
	return e.Kind == k
}

// FullReason joins the reason code and the free-text detail the way board
// comments show them: "BUG - flaky login test".
func (e Event) FullReason() string {
	return JoinReason(e.Reason, e.ExtendedReason)
}

// JoinReason combines a reason code with optional detail.
func JoinReason(reason, detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return reason
	}
	if reason == "" {
		return detail
	}
	return reason + " - " + detail
}

// SortByTime orders events by CreatedAt, keeping arrival order for equal
// timestamps.
func SortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// Truncate drops sub-second precision, matching what the log stores.
func Truncate(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0)
}
