// Package sprint aggregates finished stories over a reporting window into a
// [Report].
//
// A window covers one or more two-week sprints ending at a given instant.
// The [Aggregator] selects the finish events inside the window, rebuilds a
// [timeline.Story] for each from its full history, drops unplanned work,
// applies the caller's [Filter] and computes team metrics.
//
// Key types:
//   - [Window] - Half-open [Start, End) reporting period
//   - [Filter] - Include or exclude stories by attribute
//   - [Aggregator] - Builds reports from a store and a lookup
//   - [Report] - Read-only result with metric methods
package sprint

import (
	"errors"
	"fmt"
	"time"
)

// DefaultSprintLength is the length of one sprint.
const DefaultSprintLength = 14 * 24 * time.Hour

// ErrInvalidWindow indicates a window with no sprints or no end.
var ErrInvalidWindow = errors.New("invalid report window")

// Window is the reporting period [Start, End).
type Window struct {
	Start   time.Time
	End     time.Time
	Sprints int
}

// NewWindow builds a window of sprints sprints of sprintLength ending at end.
// A non-positive sprintLength selects [DefaultSprintLength].
func NewWindow(end time.Time, sprints int, sprintLength time.Duration) (Window, error) {
	if sprints < 1 {
		return Window{}, fmt.Errorf("%w: sprints must be at least 1, got %d", ErrInvalidWindow, sprints)
	}
	if end.IsZero() {
		return Window{}, fmt.Errorf("%w: end is required", ErrInvalidWindow)
	}
	if sprintLength <= 0 {
		sprintLength = DefaultSprintLength
	}
	return Window{
		Start:   end.Add(-time.Duration(sprints) * sprintLength),
		End:     end,
		Sprints: sprints,
	}, nil
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
