package sprint

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
	"cycletrack/internal/story"
	"cycletrack/internal/timeline"
)

var sprintEnd = time.Date(2024, 5, 17, 17, 0, 0, 0, time.UTC)

func ago(d time.Duration) time.Time {
	return sprintEnd.Add(-d)
}

func e(id string, k event.Kind, dev string, at time.Time) event.Event {
	return event.Event{TrackerID: id, Kind: k, Developer: dev, CreatedAt: at}
}

func pts(ev event.Event, p int64) event.Event {
	ev.Points = decimal.NewNullDecimal(decimal.NewFromInt(p))
	return ev
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// exampleEvents: A finishes a 1-point story in 48h, B a 2-point story in 72h,
// and a third story is started but not finished.
func exampleEvents() []event.Event {
	return []event.Event{
		pts(e("1111111", event.KindStart, "A", ago(72*time.Hour)), 1),
		e("1111111", event.KindFinish, "A", ago(24*time.Hour)),
		pts(e("2222222", event.KindStart, "B", ago(120*time.Hour)), 2),
		e("2222222", event.KindFinish, "B", ago(48*time.Hour)),
		pts(e("3333333", event.KindStart, "C", ago(10*time.Hour)), 5),
	}
}

func exampleLookup() *story.MockLookup {
	return &story.MockLookup{Details: map[string]story.Detail{
		"1111111": {ID: "1111111", Type: "User Story", Area: "Area1", Iteration: "Iteration1"},
		"2222222": {ID: "2222222", Type: "User Story", Area: "Area2", Iteration: "Iteration2"},
		"3333333": {ID: "3333333", Type: "User Story", Area: "Area1", Iteration: "Iteration1"},
	}}
}

func build(t *testing.T, events []event.Event, sprints int, f Filter) *Report {
	t.Helper()
	agg := NewAggregator(Config{
		Store:  eventlog.NewMemoryStore(events...),
		Lookup: exampleLookup(),
	})
	w, err := NewWindow(sprintEnd, sprints, 0)
	require.NoError(t, err)

	r, err := agg.Build(context.Background(), w, f)
	require.NoError(t, err)
	return r
}

// mustMetric returns a function that unwraps a metric result, failing t on
// error.
func mustMetric(t *testing.T) func(decimal.Decimal, error) decimal.Decimal {
	return func(d decimal.Decimal, err error) decimal.Decimal {
		t.Helper()
		require.NoError(t, err)
		return d
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestBuild_Example(t *testing.T) {
	must := mustMetric(t)
	r := build(t, exampleEvents(), 1, Filter{})

	assert.Equal(t, 2, r.StoryCount())
	assert.Equal(t, 2, r.DevCount())
	assertDecimal(t, "3.0", r.FinishedPoints())
	assertDecimal(t, "1.5", must(r.AveragePointsPerDeveloper()))
	assertDecimal(t, "60.0", must(r.AverageCycleHours()))
	assertDecimal(t, "2.5", must(r.AverageCycleDays()))
	assertDecimal(t, "0", must(r.RejectionPercent()))
	assert.False(t, r.MultiSprint())
	assert.Len(t, r.Events, 5)
}

func TestBuild_FinishedByProductOwner(t *testing.T) {
	// A finisher with no start of their own is measured from the window start
	// and carries no points.
	events := []event.Event{
		pts(e("1111111", event.KindStart, "Dev One", ago(72*time.Hour)), 1),
		e("1111111", event.KindFinish, "PO", ago(24*time.Hour)),
		pts(e("2222222", event.KindStart, "Dev Two", ago(120*time.Hour)), 2),
		e("2222222", event.KindFinish, "PO2", ago(48*time.Hour)),
	}
	r := build(t, events, 1, Filter{})
	must := mustMetric(t)

	assert.Equal(t, 2, r.StoryCount())
	assertDecimal(t, "0", r.FinishedPoints())
	assert.Equal(t, 2, r.DevCount())
	assertDecimal(t, "300.0", must(r.AverageCycleHours()))
	assert.Equal(t, "PO2", r.Stories[0].Developer())
	assert.Equal(t, "PO", r.Stories[1].Developer())
}

func TestBuild_TwoFinishersOnOneStory(t *testing.T) {
	events := []event.Event{
		pts(e("9", event.KindStart, "A", ago(100*time.Hour)), 3),
		e("9", event.KindReject, "A", ago(95*time.Hour)),
		e("9", event.KindFinish, "A", ago(90*time.Hour)),
		pts(e("9", event.KindStart, "B", ago(50*time.Hour)), 2),
		e("9", event.KindFinish, "B", ago(20*time.Hour)),
	}
	r := build(t, events, 1, Filter{})
	must := mustMetric(t)

	require.Equal(t, 2, r.StoryCount())
	a, b := r.Stories[0], r.Stories[1]
	assert.Equal(t, "A", a.Developer())
	assertDecimal(t, "3", a.Points())
	assertDecimal(t, "10", a.CycleHours())
	assert.True(t, a.ContainsReject())

	assert.Equal(t, "B", b.Developer())
	assertDecimal(t, "2", b.Points())
	assertDecimal(t, "30", b.CycleHours())
	assert.False(t, b.ContainsReject())

	assertDecimal(t, "5", r.FinishedPoints())
	assertDecimal(t, "20", must(r.AverageCycleHours()))
}

func TestBuild_RefinishInWindowUsesThatFinish(t *testing.T) {
	// Finished last sprint, rejected, finished again inside this one.
	events := []event.Event{
		pts(e("1", event.KindStart, "A", ago(20*24*time.Hour)), 2),
		e("1", event.KindFinish, "A", ago(16*24*time.Hour)),
		e("1", event.KindRestart, "A", ago(5*24*time.Hour)),
		e("1", event.KindFinish, "A", ago(4*24*time.Hour)),
	}
	r := build(t, events, 1, Filter{})

	require.Equal(t, 1, r.StoryCount())
	assert.True(t, ago(4*24*time.Hour).Equal(r.Stories[0].Finish()))
	assertDecimal(t, "384", r.Stories[0].CycleHours())
}

func TestBuild_ExcludeFilter(t *testing.T) {
	must := mustMetric(t)
	f, err := ParseFilter(Exclude, "area=Area2")
	require.NoError(t, err)
	r := build(t, exampleEvents(), 1, f)

	assertDecimal(t, "1.0", r.FinishedPoints())
	assert.Equal(t, 1, r.DevCount())
	assertDecimal(t, "48.0", must(r.AverageCycleHours()))
}

func TestBuild_IncludeFilter(t *testing.T) {
	must := mustMetric(t)
	f, err := ParseFilter(Include, "iteration=Iteration2")
	require.NoError(t, err)
	r := build(t, exampleEvents(), 1, f)

	assertDecimal(t, "2.0", r.FinishedPoints())
	assert.Equal(t, 1, r.DevCount())
	assertDecimal(t, "72.0", must(r.AverageCycleHours()))
}

func TestBuild_MultiSprint(t *testing.T) {
	must := mustMetric(t)
	r := build(t, exampleEvents(), 3, Filter{})

	assert.True(t, r.MultiSprint())
	assertDecimal(t, "3.0", r.FinishedPoints())
	assertDecimal(t, "1.0", must(r.AverageTeamVelocity()))
	assertDecimal(t, "1.5", must(r.AveragePointsPerDeveloper()))
	assert.Equal(t, sprintEnd.Add(-42*24*time.Hour), r.Window.Start)
}

func TestBuild_DedupFinishes(t *testing.T) {
	must := mustMetric(t)
	events := []event.Event{
		pts(e("1", event.KindStart, "A", ago(10*time.Hour)), 3),
		e("1", event.KindFinish, "A", ago(5*time.Hour)),
		e("1", event.KindFinish, "A", ago(4*time.Hour)),
	}
	r := build(t, events, 1, Filter{})
	assert.Equal(t, 1, r.StoryCount())
	assertDecimal(t, "3", r.FinishedPoints())
	assertDecimal(t, "5", must(r.AverageCycleHours()))
}

func TestBuild_StartBeforeWindowUsesHistory(t *testing.T) {
	must := mustMetric(t)
	events := []event.Event{
		pts(e("1", event.KindStart, "A", ago(20*24*time.Hour)), 2),
		e("1", event.KindFinish, "A", ago(24*time.Hour)),
	}
	r := build(t, events, 1, Filter{})
	require.Equal(t, 1, r.StoryCount())
	assertDecimal(t, "2", r.FinishedPoints())
	assertDecimal(t, "456", must(r.AverageCycleHours()))
	assert.Len(t, r.Events, 1)
}

func TestBuild_HalfOpenWindow(t *testing.T) {
	events := []event.Event{
		pts(e("1", event.KindStart, "A", ago(10*time.Hour)), 2),
		e("1", event.KindFinish, "A", sprintEnd),
	}
	r := build(t, events, 1, Filter{})
	assert.Equal(t, 0, r.StoryCount())
	assert.Len(t, r.Events, 1)
}

func TestBuild_UnplannedDropped(t *testing.T) {
	must := mustMetric(t)
	events := []event.Event{
		pts(e("9", event.KindStart, "A", ago(10*time.Hour)), 8),
		e("9", event.KindFinish, "A", ago(5*time.Hour)),
	}
	agg := NewAggregator(Config{
		Store: eventlog.NewMemoryStore(events...),
		Lookup: &story.MockLookup{Details: map[string]story.Detail{
			"9": {ID: "9", Type: DefaultUnplannedType},
		}},
	})
	w, err := NewWindow(sprintEnd, 1, 0)
	require.NoError(t, err)
	r, err := agg.Build(context.Background(), w, Filter{})
	require.NoError(t, err)

	assert.Equal(t, 0, r.StoryCount())
	_, err = r.AverageCycleHours()
	assert.ErrorIs(t, err, ErrDivisionUndefined)
	_, err = r.AveragePointsPerDeveloper()
	assert.ErrorIs(t, err, ErrDivisionUndefined)
	assertDecimal(t, "0", must(r.RejectionPercent()))
}

func TestBuild_RejectionPercent(t *testing.T) {
	must := mustMetric(t)
	events := append(exampleEvents(),
		e("1111111", event.KindReject, "QA", ago(30*time.Hour)),
	)
	r := build(t, events, 1, Filter{})
	assert.Equal(t, 1, r.RejectedEvents)
	assertDecimal(t, "50", must(r.RejectionPercent()))
}

func TestBuild_UnknownStoryCountsWithEmptyDetail(t *testing.T) {
	events := []event.Event{
		pts(e("404", event.KindStart, "A", ago(10*time.Hour)), 1),
		e("404", event.KindFinish, "A", ago(5*time.Hour)),
	}
	r := build(t, events, 1, Filter{})
	require.Equal(t, 1, r.StoryCount())
	assert.Equal(t, "", r.Stories[0].Area())
}

func TestBuild_DeletedWorkItemCountsWithEmptyDetail(t *testing.T) {
	runner := &story.MockRunner{Err: errors.New("exit status 1: ERROR: TF401232: Work item 1111111 does not exist")}
	agg := NewAggregator(Config{
		Store:  eventlog.NewMemoryStore(exampleEvents()...),
		Lookup: story.NewAzureBoards(runner, nil),
	})
	w, err := NewWindow(sprintEnd, 1, 0)
	require.NoError(t, err)

	r, err := agg.Build(context.Background(), w, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.StoryCount())
	assertDecimal(t, "3", r.FinishedPoints())
}

func TestBuild_StoreFailureAborts(t *testing.T) {
	boom := errors.New("firebase down")
	agg := NewAggregator(Config{Store: &eventlog.MemoryStore{QueryErr: boom}})
	w, err := NewWindow(sprintEnd, 1, 0)
	require.NoError(t, err)

	r, err := agg.Build(context.Background(), w, Filter{})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, boom)
}

func TestBuild_LookupFailureAborts(t *testing.T) {
	boom := errors.New("az: not logged in")
	agg := NewAggregator(Config{
		Store:  eventlog.NewMemoryStore(exampleEvents()...),
		Lookup: &story.MockLookup{Err: boom},
	})
	w, err := NewWindow(sprintEnd, 1, 0)
	require.NoError(t, err)

	_, err = agg.Build(context.Background(), w, Filter{})
	assert.ErrorIs(t, err, boom)
}

func TestBuild_InvalidWindow(t *testing.T) {
	agg := NewAggregator(Config{Store: eventlog.NewMemoryStore()})
	_, err := agg.Build(context.Background(), Window{}, Filter{})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

// countingLookup counts concurrent Fetch calls per id.
type countingLookup struct {
	calls int32
}

func (c *countingLookup) Fetch(ctx context.Context, id string) (story.Detail, error) {
	atomic.AddInt32(&c.calls, 1)
	return story.Detail{ID: id}, nil
}

func TestBuild_OneDetailPerFinish(t *testing.T) {
	events := []event.Event{
		pts(e("1", event.KindStart, "A", ago(10*time.Hour)), 1),
		e("1", event.KindFinish, "A", ago(5*time.Hour)),
		pts(e("2", event.KindStart, "B", ago(10*time.Hour)), 1),
		e("2", event.KindFinish, "B", ago(5*time.Hour)),
	}
	lookup := &countingLookup{}
	agg := NewAggregator(Config{Store: eventlog.NewMemoryStore(events...), Lookup: lookup, Concurrency: 1})
	w, err := NewWindow(sprintEnd, 1, 0)
	require.NoError(t, err)

	r, err := agg.Build(context.Background(), w, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.StoryCount())
	assert.Equal(t, int32(2), atomic.LoadInt32(&lookup.calls))
}

func TestUniqueFinishes(t *testing.T) {
	events := []event.Event{
		e("1", event.KindFinish, "B", ago(time.Hour)),
		e("1", event.KindFinish, "A", ago(3*time.Hour)),
		e("1", event.KindFinish, "A", ago(2*time.Hour)),
		e("2", event.KindStart, "A", ago(4*time.Hour)),
	}
	got := UniqueFinishes(events)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Developer)
	assert.Equal(t, ago(3*time.Hour), got[0].CreatedAt)
	assert.Equal(t, "B", got[1].Developer)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(Exclude, "area=Area2, Type=Bug")
	require.NoError(t, err)
	assert.Equal(t, []Predicate{{"area", "Area2"}, {"type", "Bug"}}, f.Predicates)
	assert.Equal(t, "area=Area2, type=Bug", f.String())

	f, err = ParseFilter(Include, "")
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())

	_, err = ParseFilter(Exclude, "area")
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = ParseFilter(Exclude, "color=red")
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestFilter_Keep(t *testing.T) {
	s, err := timeline.New("1",
		[]event.Event{e("1", event.KindStart, "A", ago(2*time.Hour)), e("1", event.KindFinish, "A", ago(time.Hour))},
		timeline.WithDetail(story.Detail{Area: "Area1", Type: "Bug"}),
		timeline.WithDeveloper("A"),
	)
	require.NoError(t, err)

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty keeps", Filter{}, true},
		{"exclude match", Filter{Mode: Exclude, Predicates: []Predicate{{"area", "Area1"}}}, false},
		{"exclude miss", Filter{Mode: Exclude, Predicates: []Predicate{{"area", "Area2"}}}, true},
		{"exclude any", Filter{Mode: Exclude, Predicates: []Predicate{{"area", "Area2"}, {"developer", "A"}}}, false},
		{"include match", Filter{Mode: Include, Predicates: []Predicate{{"type", "Bug"}}}, true},
		{"include miss", Filter{Mode: Include, Predicates: []Predicate{{"type", "Epic"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Keep(s))
		})
	}
}

func TestNewWindow(t *testing.T) {
	w, err := NewWindow(sprintEnd, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, sprintEnd.Add(-28*24*time.Hour), w.Start)
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(w.End))

	_, err = NewWindow(sprintEnd, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
