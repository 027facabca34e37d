package cli

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"cycletrack/internal/event"
	"cycletrack/internal/story"
)

// BoardUpdate records one Apply call on [MockBoards].
type BoardUpdate struct {
	TrackerID string
	Kind      event.Kind
	Comment   string
}

// MockBoards is a [Boards] implementation for testing.
type MockBoards struct {
	story.MockLookup

	// Err, when set, is returned by every update method.
	Err error

	mu       sync.Mutex
	Updates  []BoardUpdate
	Comments map[string][]string
	Points   map[string]decimal.Decimal
	Opened   []string
}

func (m *MockBoards) Apply(ctx context.Context, trackerID string, kind event.Kind, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, BoardUpdate{TrackerID: trackerID, Kind: kind, Comment: comment})
	return m.Err
}

func (m *MockBoards) SetPoints(ctx context.Context, trackerID string, points decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Points == nil {
		m.Points = make(map[string]decimal.Decimal)
	}
	m.Points[trackerID] = points
	return m.Err
}

func (m *MockBoards) AddComment(ctx context.Context, trackerID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.Comments == nil {
		m.Comments = make(map[string][]string)
	}
	m.Comments[trackerID] = append(m.Comments[trackerID], text)
	return nil
}

func (m *MockBoards) Open(ctx context.Context, trackerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Opened = append(m.Opened, trackerID)
	return m.Err
}
