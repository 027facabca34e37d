package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
)

var _ eventlog.Store = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "events.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ", nil)
	assert.Error(t, err)
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Unix(1_700_000_000, 0)
	in := []event.Event{
		{TrackerID: "1", Kind: event.KindStart, Developer: "Dev One", Points: decimal.NewNullDecimal(decimal.RequireFromString("1.5")), CreatedAt: base},
		{TrackerID: "1", Kind: event.KindBlock, Developer: "Dev One", Reason: "BUG", ExtendedReason: "flaky", CreatedAt: base.Add(time.Hour)},
		{TrackerID: "2", Kind: event.KindStart, Developer: "Dev Two", CreatedAt: base.Add(2 * time.Hour)},
		{TrackerID: "1", Kind: event.KindResume, Developer: "Dev One", CreatedAt: base.Add(time.Hour)},
	}
	for _, e := range in {
		out, err := s.Append(ctx, e)
		require.NoError(t, err)
		assert.NotEmpty(t, out.Key)
	}

	history, err := s.Query(ctx, eventlog.Query{TrackerID: "1"})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, event.KindStart, history[0].Kind)
	assert.True(t, history[0].Points.Valid)
	assert.True(t, history[0].Points.Decimal.Equal(decimal.RequireFromString("1.5")))
	// same second: arrival order
	assert.Equal(t, event.KindBlock, history[1].Kind)
	assert.Equal(t, "flaky", history[1].ExtendedReason)
	assert.Equal(t, event.KindResume, history[2].Kind)
	assert.False(t, history[2].Points.Valid)

	ranged, err := s.Query(ctx, eventlog.Query{StartAt: base.Add(time.Hour), EndAt: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	tail, err := s.Query(ctx, eventlog.Query{Last: 2})
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, event.KindResume, tail[0].Kind)
	assert.Equal(t, "2", tail[1].TrackerID)

	_, err = s.Query(ctx, eventlog.Query{})
	assert.ErrorIs(t, err, eventlog.ErrEmptyQuery)
}

func TestAppend_ClosedDatabase(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Append(context.Background(), event.Event{TrackerID: "1", Kind: event.KindStart})
	var ae *eventlog.AppendError
	assert.True(t, errors.As(err, &ae))
}
