// Package story looks up and updates the work items that events refer to.
//
// Work items live in Azure Boards and are reached through the `az` CLI. The
// event log only knows a story by its tracker id; everything else shown in
// reports (type, title, area, iteration) and used by report filters comes
// from a [Lookup].
//
// Key types:
//   - [Detail] - The fields of a work item the tracker cares about
//   - [Lookup] - Fetches a Detail by tracker id
//   - [AzureBoards] - Lookup and board updates through the az CLI
//   - [NullLookup] - Lookup used when boards integration is disabled
//   - [MockLookup] - Test implementation with canned details
package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the work item does not exist or is not visible.
var ErrNotFound = errors.New("story not found")

// Tag values that mark a work item as paused.
const (
	TagBlocked = "Blocked"
	TagStopped = "Stopped"
)

// Work item states the tracker moves stories through.
const (
	StateNew      = "New"
	StateActive   = "Active"
	StateResolved = "Resolved"
)

// Detail is a snapshot of a work item.
//
// Blocked and Stopped are derived from the tag list by exact tag match when
// the detail is loaded, so callers never need to search Tags themselves.
type Detail struct {
	ID          string
	URL         string
	Type        string
	Title       string
	Area        string
	Iteration   string
	State       string
	Column      string
	Description string
	Points      decimal.NullDecimal
	Tags        []string

	Blocked bool
	Stopped bool
}

// HasTag reports whether the work item carries tag (case-insensitive).
func (d Detail) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Lookup fetches work item details by tracker id.
//
// Implementations must be safe for concurrent use; report generation looks up
// many stories in parallel.
type Lookup interface {
	// Fetch returns the detail for trackerID, or an error wrapping
	// [ErrNotFound] when there is no such work item.
	Fetch(ctx context.Context, trackerID string) (Detail, error)
}

// NullLookup returns an empty detail carrying only the id. It serves reports
// when boards integration is disabled.
type NullLookup struct{}

// Fetch returns Detail{ID: trackerID}.
func (NullLookup) Fetch(ctx context.Context, trackerID string) (Detail, error) {
	return Detail{ID: trackerID}, nil
}

// MockLookup implements [Lookup] for testing.
//
// Details not present in the map produce [ErrNotFound] unless Err is set, in
// which case Err is returned for every call.
type MockLookup struct {
	Details map[string]Detail
	Err     error

	mu    sync.Mutex
	calls []string
}

// Fetch returns the configured detail for trackerID.
func (m *MockLookup) Fetch(ctx context.Context, trackerID string) (Detail, error) {
	m.mu.Lock()
	m.calls = append(m.calls, trackerID)
	m.mu.Unlock()

	if m.Err != nil {
		return Detail{}, m.Err
	}
	d, ok := m.Details[trackerID]
	if !ok {
		return Detail{}, fmt.Errorf("%w: %s", ErrNotFound, trackerID)
	}
	return d, nil
}

// Calls returns the tracker ids requested so far.
func (m *MockLookup) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
