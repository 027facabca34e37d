package eventlog

import (
	"context"
	"strconv"
	"sync"

	"cycletrack/internal/event"
)

// MemoryStore is a [Store] held in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events []event.Event
	seq    int

	// AppendErr, if set, makes every Append fail with it.
	AppendErr error
	// QueryErr, if set, makes every Query fail with it.
	QueryErr error
}

// NewMemoryStore creates a store pre-loaded with events. Events without a Key
// are assigned one.
func NewMemoryStore(events ...event.Event) *MemoryStore {
	m := &MemoryStore{}
	for _, e := range events {
		m.add(e)
	}
	return m
}

func (m *MemoryStore) add(e event.Event) event.Event {
	m.seq++
	if e.Key == "" {
		e.Key = "mem-" + strconv.Itoa(m.seq)
	}
	e.CreatedAt = event.Truncate(e.CreatedAt)
	m.events = append(m.events, e)
	return e
}

// Query implements [Store].
func (m *MemoryStore) Query(ctx context.Context, q Query) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if q.IsEmpty() {
		return nil, ErrEmptyQuery
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return q.Apply(m.events), nil
}

// Append implements [Store].
func (m *MemoryStore) Append(ctx context.Context, e event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, &AppendError{Event: e, Err: err}
	}
	if m.AppendErr != nil {
		return event.Event{}, &AppendError{Event: e, Err: m.AppendErr}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(e), nil
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
