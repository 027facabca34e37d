// Package timeline derives per-story metrics from a story's event history.
//
// A [Story] is built once from the events of a single tracker id and is
// read-only afterwards. It answers the questions reports ask: how many points
// the story carried, whether it was rejected, and how long it took from start
// to finish once blocked time is taken out.
//
// Key types:
//   - [Story] - Derived metrics for one story
//   - [Option] - Functional options for [New]
package timeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cycletrack/internal/event"
	"cycletrack/internal/story"
)

// Sentinel errors returned by [New].
var (
	// ErrNotFinished indicates the history holds no finish event.
	ErrNotFinished = errors.New("story has no finish event")

	// ErrNoStartBoundary indicates there is neither a start event nor a
	// window start to measure from.
	ErrNoStartBoundary = errors.New("story has no start event and no window start")
)

// Attribute names accepted by [Story.Attribute].
const (
	AttrType      = "type"
	AttrArea      = "area"
	AttrIteration = "iteration"
	AttrDeveloper = "developer"
	AttrTitle     = "title"
)

var secondsPerHour = decimal.NewFromInt(3600)

// Story holds the history of one story and the metrics derived from it.
type Story struct {
	trackerID   string
	developer   string
	windowStart time.Time
	detail      story.Detail
	events      []event.Event

	start  *event.Event
	finish *event.Event
}

// Option configures [New].
type Option func(*options)

type options struct {
	developer   string
	only        bool
	windowStart time.Time
	detail      story.Detail
	hasDetail   bool
	finish      *event.Event
}

// WithDeveloper attributes the story to name. The start, finish and reject
// events are taken from name's events only; block and resume events of every
// developer still count.
func WithDeveloper(name string) Option {
	return func(o *options) {
		o.developer = name
		o.only = false
	}
}

// OnlyDeveloper is [WithDeveloper] that also ignores every event recorded by
// anyone else.
func OnlyDeveloper(name string) Option {
	return func(o *options) {
		o.developer = name
		o.only = true
	}
}

// WithWindowStart sets the boundary used when the history has no start
// event, typically because the story started before the reporting window.
func WithWindowStart(t time.Time) Option {
	return func(o *options) {
		o.windowStart = t
	}
}

// WithFinish pins the finish boundary to e instead of the developer's first
// finish. Used when a story is finished more than once.
func WithFinish(e event.Event) Option {
	return func(o *options) {
		o.finish = &e
	}
}

// WithDetail attaches the work item detail used by [Story.Type] and friends.
func WithDetail(d story.Detail) Option {
	return func(o *options) {
		o.detail = d
		o.hasDetail = true
	}
}

// New builds a [Story] from the events of trackerID.
//
// Events belonging to other tracker ids are ignored. The finish is the first
// finish by the story's developer (any developer when none is set) unless
// [WithFinish] pins it; the start is that developer's first start at or
// before the finish.
//
// New returns [ErrNotFinished] when no finish event is present and
// [ErrNoStartBoundary] when there is no start event and no window start.
func New(trackerID string, events []event.Event, opts ...Option) (*Story, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	own := make([]event.Event, 0, len(events))
	for _, e := range events {
		if e.TrackerID != trackerID {
			continue
		}
		if o.only && e.Developer != o.developer {
			continue
		}
		own = append(own, e)
	}
	event.SortByTime(own)

	s := &Story{
		trackerID:   trackerID,
		developer:   o.developer,
		windowStart: o.windowStart,
		events:      own,
	}
	if o.hasDetail {
		s.detail = o.detail
	} else {
		s.detail = story.Detail{ID: trackerID}
	}

	if o.finish != nil {
		s.finish = o.finish
	} else {
		s.finish = s.first(event.KindFinish, time.Time{})
	}
	if s.finish == nil {
		return nil, fmt.Errorf("%s: %w", trackerID, ErrNotFinished)
	}
	s.start = s.first(event.KindStart, s.finish.CreatedAt)
	if s.start == nil && o.windowStart.IsZero() {
		return nil, fmt.Errorf("%s: %w", trackerID, ErrNoStartBoundary)
	}
	return s, nil
}

// first returns the earliest event of kind k by the story's developer,
// ignoring events after notAfter when it is set.
func (s *Story) first(k event.Kind, notAfter time.Time) *event.Event {
	for i := range s.events {
		e := &s.events[i]
		if !notAfter.IsZero() && e.CreatedAt.After(notAfter) {
			break
		}
		if e.Kind == k && s.byDeveloper(*e) {
			return e
		}
	}
	return nil
}

func (s *Story) byDeveloper(e event.Event) bool {
	return s.developer == "" || e.Developer == s.developer
}

// Points returns the points recorded on the start event, or zero.
func (s *Story) Points() decimal.Decimal {
	if s.start == nil || !s.start.Points.Valid {
		return decimal.Zero
	}
	return s.start.Points.Decimal
}

// ContainsReject reports whether the history holds a reject event by the
// story's developer.
func (s *Story) ContainsReject() bool {
	for _, e := range s.events {
		if e.Kind == event.KindReject && s.byDeveloper(e) {
			return true
		}
	}
	return false
}

// Begin is the instant cycle time is measured from: the start event, or the
// window start when the story started earlier than the history shows.
func (s *Story) Begin() time.Time {
	if s.start != nil {
		return s.start.CreatedAt
	}
	return s.windowStart
}

// Finish is the time of the finish event.
func (s *Story) Finish() time.Time {
	return s.finish.CreatedAt
}

// Elapsed is the wall-clock time between [Story.Begin] and [Story.Finish].
func (s *Story) Elapsed() time.Duration {
	return s.Finish().Sub(s.Begin())
}

// Blocked sums the closed block/resume intervals of the whole history. A
// block without a following resume counts as zero.
func (s *Story) Blocked() time.Duration {
	var total time.Duration
	var open *time.Time
	for i := range s.events {
		e := &s.events[i]
		switch e.Kind {
		case event.KindBlock:
			if open == nil {
				at := e.CreatedAt
				open = &at
			}
		case event.KindResume:
			if open == nil {
				continue
			}
			total += e.CreatedAt.Sub(*open)
			open = nil
		}
	}
	return total
}

// CycleHours is (elapsed - blocked) in hours.
func (s *Story) CycleHours() decimal.Decimal {
	secs := int64((s.Elapsed() - s.Blocked()) / time.Second)
	return decimal.NewFromInt(secs).Div(secondsPerHour)
}

// TrackerID returns the story's tracker id.
func (s *Story) TrackerID() string { return s.trackerID }

// Developer returns the developer the story is attributed to.
func (s *Story) Developer() string { return s.developer }

// Type returns the work item type.
func (s *Story) Type() string { return s.detail.Type }

// Title returns the work item title.
func (s *Story) Title() string { return s.detail.Title }

// Area returns the work item area.
func (s *Story) Area() string { return s.detail.Area }

// Iteration returns the work item iteration.
func (s *Story) Iteration() string { return s.detail.Iteration }

// Detail returns the attached work item detail.
func (s *Story) Detail() story.Detail { return s.detail }

// Events returns a copy of the story's events in chronological order.
func (s *Story) Events() []event.Event {
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Attribute returns the value of a filterable attribute by name. The second
// result is false for unknown names.
func (s *Story) Attribute(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case AttrType:
		return s.Type(), true
	case AttrArea:
		return s.Area(), true
	case AttrIteration:
		return s.Iteration(), true
	case AttrDeveloper, "dev", "dev_name":
		return s.Developer(), true
	case AttrTitle:
		return s.Title(), true
	}
	return "", false
}
