package sprint

import (
	"errors"

	"github.com/shopspring/decimal"

	"cycletrack/internal/event"
	"cycletrack/internal/timeline"
)

// ErrDivisionUndefined is returned by a metric whose denominator is zero.
var ErrDivisionUndefined = errors.New("metric undefined: division by zero")

const places = 2

var (
	hundred     = decimal.NewFromInt(100)
	hoursPerDay = decimal.NewFromInt(24)
)

// Report is the result of [Aggregator.Build]. It is not modified after
// construction.
type Report struct {
	Window Window
	Filter Filter

	// Events are all events recorded in the window.
	Events []event.Event

	// Stories are the finished stories counted by the report.
	Stories []*timeline.Story

	// RejectedEvents counts reject events in the window.
	RejectedEvents int
}

// StoryCount is the number of counted stories.
func (r *Report) StoryCount() int {
	return len(r.Stories)
}

// DevCount is the number of distinct developers the stories are attributed to.
func (r *Report) DevCount() int {
	seen := make(map[string]struct{}, len(r.Stories))
	for _, s := range r.Stories {
		seen[s.Developer()] = struct{}{}
	}
	return len(seen)
}

// FinishedPoints sums story points.
func (r *Report) FinishedPoints() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range r.Stories {
		sum = sum.Add(s.Points())
	}
	return sum.Round(places)
}

// AveragePointsPerDeveloper is FinishedPoints / DevCount.
func (r *Report) AveragePointsPerDeveloper() (decimal.Decimal, error) {
	devs := r.DevCount()
	if devs == 0 {
		return decimal.Zero, ErrDivisionUndefined
	}
	return r.FinishedPoints().Div(decimal.NewFromInt(int64(devs))).Round(places), nil
}

// AverageCycleHours is the mean cycle time of the counted stories.
func (r *Report) AverageCycleHours() (decimal.Decimal, error) {
	n := r.StoryCount()
	if n == 0 {
		return decimal.Zero, ErrDivisionUndefined
	}
	sum := decimal.Zero
	for _, s := range r.Stories {
		sum = sum.Add(s.CycleHours())
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(places), nil
}

// AverageCycleDays is AverageCycleHours / 24.
func (r *Report) AverageCycleDays() (decimal.Decimal, error) {
	h, err := r.AverageCycleHours()
	if err != nil {
		return decimal.Zero, err
	}
	return h.Div(hoursPerDay).Round(places), nil
}

// RejectionPercent is RejectedEvents / StoryCount * 100. It is 0 whenever
// there were no rejections, even with no stories.
func (r *Report) RejectionPercent() (decimal.Decimal, error) {
	if r.RejectedEvents == 0 {
		return decimal.Zero, nil
	}
	n := r.StoryCount()
	if n == 0 {
		return decimal.Zero, ErrDivisionUndefined
	}
	return decimal.NewFromInt(int64(r.RejectedEvents)).
		Div(decimal.NewFromInt(int64(n))).
		Mul(hundred).
		Round(places), nil
}

// MultiSprint reports whether the window spans more than one sprint.
func (r *Report) MultiSprint() bool {
	return r.Window.Sprints > 1
}

// AverageTeamVelocity is FinishedPoints per sprint.
func (r *Report) AverageTeamVelocity() (decimal.Decimal, error) {
	if r.Window.Sprints <= 0 {
		return decimal.Zero, ErrDivisionUndefined
	}
	return r.FinishedPoints().Div(decimal.NewFromInt(int64(r.Window.Sprints))).Round(places), nil
}
