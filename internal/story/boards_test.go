package story

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycletrack/internal/event"
)

const showOutput = `{
  "id": 1234567,
  "url": "https://dev.azure.com/org/_apis/wit/workItems/1234567",
  "fields": {
    "System.AreaLevel3": "Area1",
    "System.IterationLevel3": "Iteration1",
    "System.State": "Active",
    "System.WorkItemType": "User Story",
    "System.Title": "Login page",
    "Microsoft.VSTS.Scheduling.StoryPoints": 3.0,
    "System.BoardColumn": "Doing",
    "System.Tags": "Backend; Blocked",
    "System.Description": "<div>desc</div>"
  }
}`

func newBoards(r *MockRunner) *AzureBoards {
	return NewAzureBoards(r, nil)
}

func TestAzureBoards_Fetch(t *testing.T) {
	r := &MockRunner{Output: map[string][]byte{"show": []byte(showOutput)}}
	d, err := newBoards(r).Fetch(context.Background(), "1234567")
	require.NoError(t, err)

	assert.Equal(t, "1234567", d.ID)
	assert.Equal(t, "Area1", d.Area)
	assert.Equal(t, "Iteration1", d.Iteration)
	assert.Equal(t, "User Story", d.Type)
	assert.Equal(t, "Login page", d.Title)
	assert.Equal(t, "Doing", d.Column)
	assert.True(t, d.Points.Valid)
	assert.True(t, d.Points.Decimal.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, []string{"Backend", "Blocked"}, d.Tags)
	assert.True(t, d.Blocked)
	assert.False(t, d.Stopped)

	require.Len(t, r.Invocations, 1)
	assert.Equal(t, []string{"boards", "work-item", "show", "--id", "1234567", "--output", "json"}, r.Invocations[0])
}

func TestAzureBoards_Fetch_TagsExactMatch(t *testing.T) {
	out := `{"id": 1, "fields": {"System.Tags": "Unblocked; Stopped-Later"}}`
	r := &MockRunner{Output: map[string][]byte{"show": []byte(out)}}
	d, err := newBoards(r).Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, d.Blocked)
	assert.False(t, d.Stopped)
	assert.False(t, d.Points.Valid)
}

func TestAzureBoards_Fetch_Errors(t *testing.T) {
	t.Run("empty output", func(t *testing.T) {
		r := &MockRunner{Output: map[string][]byte{}}
		_, err := newBoards(r).Fetch(context.Background(), "42")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("runner failure", func(t *testing.T) {
		boom := errors.New("az: not logged in")
		r := &MockRunner{Err: boom}
		_, err := newBoards(r).Fetch(context.Background(), "42")
		assert.ErrorIs(t, err, boom)
		assert.False(t, errors.Is(err, ErrNotFound))
	})

	t.Run("deleted work item", func(t *testing.T) {
		r := &MockRunner{Err: errors.New("az boards work-item show --id 42 --output json: exit status 1: " +
			"ERROR: TF401232: Work item 42 does not exist, or you do not have permissions to read it.")}
		_, err := newBoards(r).Fetch(context.Background(), "42")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("bad json", func(t *testing.T) {
		r := &MockRunner{Output: map[string][]byte{"show": []byte("{oops")}}
		_, err := newBoards(r).Fetch(context.Background(), "42")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestAzureBoards_Apply(t *testing.T) {
	tests := []struct {
		name    string
		kind    event.Kind
		comment string
		want    [][]string
	}{
		{
			name: "start activates",
			kind: event.KindStart,
			want: [][]string{
				{"boards", "work-item", "update", "--id", "7", "--state", "Active"},
			},
		},
		{
			name: "finish resolves",
			kind: event.KindFinish,
			want: [][]string{
				{"boards", "work-item", "update", "--id", "7", "--state", "Resolved"},
			},
		},
		{
			name:    "stop tags and comments",
			kind:    event.KindStop,
			comment: "PRIORITY_CHANGE - moved",
			want: [][]string{
				{"boards", "work-item", "show", "--id", "7", "--output", "json"},
				{"boards", "work-item", "update", "--id", "7", "--fields", "System.Tags=Backend; Blocked; Stopped"},
				{"boards", "work-item", "update", "--id", "7", "--discussion", "PRIORITY_CHANGE - moved"},
			},
		},
		{
			name: "block when already blocked",
			kind: event.KindBlock,
			want: [][]string{
				{"boards", "work-item", "show", "--id", "7", "--output", "json"},
			},
		},
		{
			name: "resume removes tags",
			kind: event.KindResume,
			want: [][]string{
				{"boards", "work-item", "show", "--id", "7", "--output", "json"},
				{"boards", "work-item", "update", "--id", "7", "--fields", "System.Tags=Backend"},
			},
		},
		{
			name:    "reject comments only",
			kind:    event.KindReject,
			comment: "BAD_AC",
			want: [][]string{
				{"boards", "work-item", "update", "--id", "7", "--discussion", "BAD_AC"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &MockRunner{Output: map[string][]byte{"show": []byte(showOutput)}}
			err := newBoards(r).Apply(context.Background(), "7", tt.kind, tt.comment)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Invocations)
		})
	}
}

func TestAzureBoards_SetPointsAndOpen(t *testing.T) {
	r := &MockRunner{}
	b := newBoards(r)

	require.NoError(t, b.SetPoints(context.Background(), "9", decimal.RequireFromString("2.5")))
	require.NoError(t, b.Open(context.Background(), "9"))

	assert.Equal(t, [][]string{
		{"boards", "work-item", "update", "--id", "9", "--fields", "Microsoft.VSTS.Scheduling.StoryPoints=2.5"},
		{"boards", "work-item", "show", "--id", "9", "--open"},
	}, r.Invocations)
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, SplitTags(""))
	assert.Equal(t, []string{"a", "b"}, SplitTags(" a ;; b; "))
	assert.Equal(t, "a; b", JoinTags([]string{"a", "b"}))
}

func TestMockLookup(t *testing.T) {
	m := &MockLookup{Details: map[string]Detail{"1": {ID: "1", Area: "Area1"}}}

	d, err := m.Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Area1", d.Area)

	_, err = m.Fetch(context.Background(), "2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"1", "2"}, m.Calls())

	d, err = NullLookup{}.Fetch(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, Detail{ID: "3"}, d)
}
