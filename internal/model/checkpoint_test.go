package model

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems(n int) ([]WorkItem, []string) {
	items := make([]WorkItem, n)
	ids := make([]string, n)
	for i := range items {
		u := "https://dealer" + string(rune('a'+i)) + ".com"
		items[i] = NewWorkItem(u, u, i)
		ids[i] = items[i].ID
	}
	return items, ids
}

func TestCheckpoint_NewIsAllPending(t *testing.T) {
	items, ids := testItems(4)
	cp := NewCheckpoint("s1", time.Now(), items)
	assert.Len(t, cp.Pending, 4)
	require.NoError(t, cp.Validate(ids))
}

func TestCheckpoint_ApplyMovesBetweenSets(t *testing.T) {
	items, ids := testItems(3)
	cp := NewCheckpoint("s1", time.Now(), items)

	require.NoError(t, cp.Apply(ids[0], Outcome{Status: StatusCompleted, URL: items[0].URL, Rooftops: 1}))
	require.NoError(t, cp.Apply(ids[1], Outcome{Status: StatusFailed, URL: items[1].URL, Error: "unreachable"}))
	require.NoError(t, cp.Validate(ids))

	st, ok := cp.StatusOf(ids[1])
	require.True(t, ok)
	assert.Equal(t, StatusFailed, st)
	assert.Equal(t, "unreachable", cp.Failed[ids[1]].Error)

	// Explicit retry moves failed back to pending.
	require.NoError(t, cp.Apply(ids[1], Outcome{Status: StatusPending, URL: items[1].URL}))
	st, _ = cp.StatusOf(ids[1])
	assert.Equal(t, StatusPending, st)
	assert.Empty(t, cp.Pending[ids[1]].Error)
	require.NoError(t, cp.Validate(ids))

	assert.Error(t, cp.Apply(ids[2], Outcome{Status: StatusInProgress}))
	assert.Error(t, cp.Apply("unknown", Outcome{Status: StatusCompleted}))
}

func TestCheckpoint_ValidateDetectsViolations(t *testing.T) {
	items, ids := testItems(2)
	cp := NewCheckpoint("s1", time.Now(), items)

	cp.Completed[ids[0]] = Entry{ID: ids[0]}
	assert.ErrorIs(t, cp.Validate(ids), ErrPartitionViolated)

	delete(cp.Completed, ids[0])
	delete(cp.Pending, ids[1])
	assert.ErrorIs(t, cp.Validate(ids), ErrPartitionViolated)
}

// Random outcome sequences keep the partition intact after every step.
func TestCheckpoint_PartitionProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	statuses := []WorkStatus{StatusCompleted, StatusFailed, StatusPending}
	for trial := 0; trial < 50; trial++ {
		items, ids := testItems(8)
		cp := NewCheckpoint("s", time.Now(), items)
		for step := 0; step < 30; step++ {
			id := ids[r.IntN(len(ids))]
			require.NoError(t, cp.Apply(id, Outcome{Status: statuses[r.IntN(len(statuses))]}))
			require.NoError(t, cp.Validate(ids))
			assert.Equal(t, len(ids), cp.Total())
		}
	}
}

func TestCheckpoint_Clone(t *testing.T) {
	items, ids := testItems(2)
	cp := NewCheckpoint("s1", time.Now(), items)
	c := cp.Clone()
	require.NoError(t, c.Apply(ids[0], Outcome{Status: StatusCompleted}))
	assert.Len(t, cp.Pending, 2)
	assert.Len(t, c.Pending, 1)
}
