package sprint

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
	"cycletrack/internal/story"
	"cycletrack/internal/timeline"
)

// DefaultUnplannedType is the work item type reports leave out.
const DefaultUnplannedType = "Production Support Incident"

// DefaultConcurrency bounds parallel history and detail fetches.
const DefaultConcurrency = 8

// Config configures an [Aggregator].
type Config struct {
	Store  eventlog.Store
	Lookup story.Lookup

	// UnplannedType is the work item type excluded from every report.
	// Default: DefaultUnplannedType.
	UnplannedType string

	// Concurrency bounds parallel fetches. Default: DefaultConcurrency.
	Concurrency int

	Log *logrus.Entry
}

// Aggregator builds sprint reports.
//
// Create with [NewAggregator]. An Aggregator is safe for concurrent use.
type Aggregator struct {
	store         eventlog.Store
	lookup        story.Lookup
	unplannedType string
	concurrency   int
	log           *logrus.Entry

	details singleflight.Group
}

// NewAggregator creates an [Aggregator]. A nil Lookup selects
// [story.NullLookup].
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Lookup == nil {
		cfg.Lookup = story.NullLookup{}
	}
	if cfg.UnplannedType == "" {
		cfg.UnplannedType = DefaultUnplannedType
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Aggregator{
		store:         cfg.Store,
		lookup:        cfg.Lookup,
		unplannedType: cfg.UnplannedType,
		concurrency:   cfg.Concurrency,
		log:           cfg.Log.WithField("cmp", "sprint"),
	}
}

// Build produces the report for window w filtered by f.
//
// Any store or lookup failure aborts the build; no partial report is
// returned. A story unknown to the board is counted with an empty detail.
func (a *Aggregator) Build(ctx context.Context, w Window, f Filter) (*Report, error) {
	if w.Sprints < 1 || w.End.IsZero() {
		return nil, ErrInvalidWindow
	}

	raw, err := a.store.Query(ctx, eventlog.Query{StartAt: w.Start, EndAt: w.End})
	if err != nil {
		return nil, fmt.Errorf("query window events: %w", err)
	}

	events := make([]event.Event, 0, len(raw))
	rejected := 0
	for _, e := range raw {
		if !w.Contains(e.CreatedAt) {
			continue
		}
		events = append(events, e)
		if e.Kind == event.KindReject {
			rejected++
		}
	}

	finishes := UniqueFinishes(events)
	a.log.WithFields(logrus.Fields{
		"start": w.Start, "end": w.End, "events": len(events), "finished": len(finishes),
	}).Debug("building report")

	stories, err := a.buildStories(ctx, w, finishes)
	if err != nil {
		return nil, err
	}

	counted := make([]*timeline.Story, 0, len(stories))
	for _, s := range stories {
		if s == nil {
			continue
		}
		if s.Type() == a.unplannedType {
			continue
		}
		if !f.Keep(s) {
			continue
		}
		counted = append(counted, s)
	}

	return &Report{
		Window:         w,
		Filter:         f,
		Events:         events,
		Stories:        counted,
		RejectedEvents: rejected,
	}, nil
}

// UniqueFinishes returns the finish events of events, keeping only the first
// per (tracker id, developer) in chronological order.
func UniqueFinishes(events []event.Event) []event.Event {
	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.SortByTime(sorted)

	type key struct{ id, dev string }
	seen := make(map[key]bool)
	var out []event.Event
	for _, e := range sorted {
		if e.Kind != event.KindFinish {
			continue
		}
		k := key{e.TrackerID, e.Developer}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// buildStories fetches history and detail for every finish in parallel. The
// result is index-aligned with finishes; skipped stories are nil.
func (a *Aggregator) buildStories(ctx context.Context, w Window, finishes []event.Event) ([]*timeline.Story, error) {
	stories := make([]*timeline.Story, len(finishes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, fin := range finishes {
		i, fin := i, fin
		g.Go(func() error {
			history, err := eventlog.History(gctx, a.store, fin.TrackerID)
			if err != nil {
				return fmt.Errorf("history of %s: %w", fin.TrackerID, err)
			}

			detail, err := a.detail(gctx, fin.TrackerID)
			if err != nil {
				return err
			}

			s, err := timeline.New(fin.TrackerID, history,
				timeline.WithWindowStart(w.Start),
				timeline.WithDeveloper(fin.Developer),
				timeline.WithFinish(fin),
				timeline.WithDetail(detail),
			)
			if errors.Is(err, timeline.ErrNotFinished) {
				a.log.WithField("id", fin.TrackerID).Warn("history has no finish event, skipping story")
				return nil
			}
			if err != nil {
				return err
			}
			stories[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stories, nil
}

// detail looks up a work item, collapsing concurrent lookups of the same id.
func (a *Aggregator) detail(ctx context.Context, trackerID string) (story.Detail, error) {
	v, err, _ := a.details.Do(trackerID, func() (interface{}, error) {
		d, err := a.lookup.Fetch(ctx, trackerID)
		if errors.Is(err, story.ErrNotFound) {
			a.log.WithField("id", trackerID).Warn("story not found on board")
			return story.Detail{ID: trackerID}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("detail of %s: %w", trackerID, err)
		}
		return d, nil
	})
	if err != nil {
		return story.Detail{}, err
	}
	return v.(story.Detail), nil
}
