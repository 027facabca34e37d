// Package eventlog defines the append-only log of lifecycle events and its
// in-process implementation.
//
// The log is the source of truth for every story. Events are never updated or
// deleted; corrections are made by appending new events.
//
// Key types:
//   - [Store] - The persistence interface adapters implement
//   - [Query] - Time range, tracker id and tail-length selection
//   - [MemoryStore] - In-process store used by tests and dry runs
//   - [AppendError] - Wraps every append failure
//
// The firebase and sqlite subpackages provide the durable adapters.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cycletrack/internal/event"
)

// ErrEmptyQuery is returned for a [Query] that selects nothing in particular.
// Scanning the whole log is never what a caller wants.
var ErrEmptyQuery = errors.New("query has no bounds")

// Query selects events from the log.
//
// StartAt and EndAt are inclusive; a zero value leaves that side unbounded.
// TrackerID restricts to one story. Last, when positive, keeps only the most
// recent Last matching events.
type Query struct {
	StartAt   time.Time
	EndAt     time.Time
	TrackerID string
	Last      int
}

// IsEmpty reports whether q sets no selection at all.
func (q Query) IsEmpty() bool {
	return q.StartAt.IsZero() && q.EndAt.IsZero() && q.TrackerID == "" && q.Last <= 0
}

// Match reports whether e satisfies the range and tracker id of q. Last is
// not considered.
func (q Query) Match(e event.Event) bool {
	if q.TrackerID != "" && e.TrackerID != q.TrackerID {
		return false
	}
	if !q.StartAt.IsZero() && e.CreatedAt.Before(event.Truncate(q.StartAt)) {
		return false
	}
	if !q.EndAt.IsZero() && e.CreatedAt.After(event.Truncate(q.EndAt)) {
		return false
	}
	return true
}

// Apply filters events by q, sorts them by time keeping arrival order for
// ties, and trims to the last q.Last. events is not modified.
//
// Adapters that cannot express every part of a query server-side run their
// results through Apply.
func (q Query) Apply(events []event.Event) []event.Event {
	out := make([]event.Event, 0, len(events))
	for _, e := range events {
		if q.Match(e) {
			out = append(out, e)
		}
	}
	event.SortByTime(out)
	if q.Last > 0 && len(out) > q.Last {
		out = out[len(out)-q.Last:]
	}
	return out
}

// Store is an append-only event log.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Query returns the matching events ascending by CreatedAt, stable by
	// arrival order. An empty result is not an error.
	Query(ctx context.Context, q Query) ([]event.Event, error)

	// Append stores e and returns it with Key set. Failures are returned as
	// [*AppendError].
	Append(ctx context.Context, e event.Event) (event.Event, error)
}

// AppendError reports an event that could not be written.
type AppendError struct {
	Event event.Event
	Err   error
}

// Error returns a message naming the story and event kind.
func (e *AppendError) Error() string {
	return fmt.Sprintf("append %s event for %s: %v", e.Event.Kind, e.Event.TrackerID, e.Err)
}

// Unwrap returns the underlying error.
func (e *AppendError) Unwrap() error {
	return e.Err
}

// History returns every event recorded for trackerID.
func History(ctx context.Context, s Store, trackerID string) ([]event.Event, error) {
	return s.Query(ctx, Query{TrackerID: trackerID})
}
