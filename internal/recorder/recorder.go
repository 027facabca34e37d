// Package recorder records lifecycle events for stories.
//
// The [Recorder] is the write path of the tracker: it checks a proposed event
// against the story's history with the [transition.Validator], appends it to
// the [eventlog.Store], and then mirrors it onto the work item board. The log
// is the source of truth, so a board failure after a successful append is
// logged rather than returned.
//
// Key types:
//   - [Recorder] - Validates, appends and syncs events
//   - [Request] - A proposed event
//   - [Board] - The work item board the recorder keeps in step
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
	"cycletrack/internal/story"
	"cycletrack/internal/transition"
)

// Sentinel errors for malformed requests.
var (
	// ErrMissingTrackerID indicates a request without a story id.
	ErrMissingTrackerID = errors.New("tracker id is required")

	// ErrMissingDeveloper indicates a request without a developer name.
	// Set dev_name in the settings file or CTF_DEV_NAME.
	ErrMissingDeveloper = errors.New("developer name is required")
)

// Board is the work item board events are mirrored onto.
//
// [story.AzureBoards] implements this interface.
type Board interface {
	story.Lookup

	// Apply updates the work item for an event of kind, adding comment to the
	// discussion when non-empty.
	Apply(ctx context.Context, trackerID string, kind event.Kind, comment string) error

	// SetPoints sets the work item's estimate.
	SetPoints(ctx context.Context, trackerID string, points decimal.Decimal) error
}

// Request is a proposed event.
type Request struct {
	TrackerID string
	Developer string
	Kind      event.Kind

	// Points is recorded on start events. When unset for a start, the
	// board's estimate is used.
	Points decimal.NullDecimal

	// Reason is a reason code (see [event.Reasons]); required for kinds
	// whose catalog rule says so.
	Reason         string
	ExtendedReason string

	// At is the event time. Zero means now.
	At time.Time
}

// Recorder validates and records events.
//
// Create with [NewRecorder]. Board sync is off until [Recorder.SetBoard] is
// called.
type Recorder struct {
	store     eventlog.Store
	validator *transition.Validator
	board     Board
	log       *logrus.Entry
	now       func() time.Time
}

// NewRecorder creates a Recorder writing to store and checking transitions
// with validator. A nil validator selects the default catalog.
func NewRecorder(store eventlog.Store, validator *transition.Validator, log *logrus.Entry) *Recorder {
	if validator == nil {
		validator = transition.NewValidator(nil)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recorder{
		store:     store,
		validator: validator,
		log:       log.WithField("cmp", "recorder"),
		now:       time.Now,
	}
}

// SetBoard enables board sync. Passing nil disables it.
func (r *Recorder) SetBoard(b Board) {
	r.board = b
}

// SetClock replaces the time source used for requests without At.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// History returns the story's events in chronological order.
func (r *Recorder) History(ctx context.Context, trackerID string) ([]event.Event, error) {
	trackerID = strings.TrimSpace(trackerID)
	if trackerID == "" {
		return nil, ErrMissingTrackerID
	}
	events, err := eventlog.History(ctx, r.store, trackerID)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", trackerID, err)
	}
	return events, nil
}

// NextKinds returns the kinds that may be recorded next for the story,
// together with its most recent event (nil for a new story).
func (r *Recorder) NextKinds(ctx context.Context, trackerID string) ([]event.Kind, *event.Event, error) {
	history, err := r.History(ctx, trackerID)
	if err != nil {
		return nil, nil, err
	}
	last := transition.LastEvent(history)
	return r.validator.NextKinds(last), last, nil
}

// Record validates req against the story's history, appends it, and syncs
// the board.
//
// Validation failures return errors matching [transition.ErrInvalidTransition],
// [transition.ErrMissingReason], [event.ErrUnknownKind] or
// [event.ErrUnknownReason]; nothing is written in that case. Append failures
// are returned as [*eventlog.AppendError].
func (r *Recorder) Record(ctx context.Context, req Request) (event.Event, error) {
	e, err := r.prepare(ctx, req)
	if err != nil {
		return event.Event{}, err
	}

	stored, err := r.store.Append(ctx, e)
	if err != nil {
		return event.Event{}, err
	}
	r.log.WithFields(logrus.Fields{"id": stored.TrackerID, "event": stored.Kind, "key": stored.Key}).Info("event recorded")

	r.syncBoard(ctx, stored)
	return stored, nil
}

// Check runs every validation Record would without writing anything.
func (r *Recorder) Check(ctx context.Context, req Request) error {
	_, err := r.prepare(ctx, req)
	return err
}

func (r *Recorder) prepare(ctx context.Context, req Request) (event.Event, error) {
	catalog := r.validator.Catalog()

	e := event.Event{
		TrackerID:      strings.TrimSpace(req.TrackerID),
		Developer:      strings.TrimSpace(req.Developer),
		Points:         req.Points,
		ExtendedReason: strings.TrimSpace(req.ExtendedReason),
		CreatedAt:      req.At,
	}
	if e.TrackerID == "" {
		return event.Event{}, ErrMissingTrackerID
	}
	if e.Developer == "" {
		return event.Event{}, ErrMissingDeveloper
	}

	kind, err := catalog.Parse(string(req.Kind))
	if err != nil {
		return event.Event{}, err
	}
	e.Kind = kind

	if strings.TrimSpace(req.Reason) != "" {
		reason, err := event.ParseReason(req.Reason)
		if err != nil {
			return event.Event{}, err
		}
		e.Reason = string(reason)
	}
	if err := r.validator.CheckReason(kind, e.Reason); err != nil {
		return event.Event{}, err
	}

	history, err := r.History(ctx, e.TrackerID)
	if err != nil {
		return event.Event{}, err
	}
	if err := r.validator.Validate(transition.LastEvent(history), kind); err != nil {
		return event.Event{}, err
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = event.Truncate(e.CreatedAt)

	if kind == event.KindStart && !e.Points.Valid {
		e.Points = r.boardPoints(ctx, e.TrackerID)
	}
	return e, nil
}

// boardPoints returns the board's estimate for a story, or an invalid value
// when there is no board or it cannot be read.
func (r *Recorder) boardPoints(ctx context.Context, trackerID string) decimal.NullDecimal {
	if r.board == nil {
		return decimal.NullDecimal{}
	}
	d, err := r.board.Fetch(ctx, trackerID)
	if err != nil {
		r.log.WithError(err).WithField("id", trackerID).Warn("could not read points from board")
		return decimal.NullDecimal{}
	}
	return d.Points
}

func (r *Recorder) syncBoard(ctx context.Context, e event.Event) {
	if r.board == nil {
		return
	}
	log := r.log.WithFields(logrus.Fields{"id": e.TrackerID, "event": e.Kind})

	if e.Kind == event.KindStart && e.Points.Valid {
		d, err := r.board.Fetch(ctx, e.TrackerID)
		if err != nil {
			log.WithError(err).Warn("board lookup failed")
		} else if !d.Points.Valid {
			if err := r.board.SetPoints(ctx, e.TrackerID, e.Points.Decimal); err != nil {
				log.WithError(err).Warn("board points update failed")
			}
		}
	}

	if err := r.board.Apply(ctx, e.TrackerID, e.Kind, e.FullReason()); err != nil {
		log.WithError(err).Warn("board update failed; event is recorded in the log")
	}
}
