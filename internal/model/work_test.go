package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkItemID_Stable(t *testing.T) {
	a := WorkItemID("https://example.com")
	assert.Len(t, a, 16)
	assert.Equal(t, a, WorkItemID("https://example.com"))
	assert.NotEqual(t, a, WorkItemID("https://example.org"))
}

func TestWorkItem_Transitions(t *testing.T) {
	w := NewWorkItem("https://a.com", "https://a.com", 0)
	assert.Equal(t, StatusPending, w.Status)

	// No transition skips in_progress.
	require.ErrorIs(t, w.Transition(StatusCompleted), ErrInvalidTransition)
	require.NoError(t, w.Transition(StatusInProgress))
	require.NoError(t, w.Transition(StatusCompleted))
	assert.True(t, w.Status.IsTerminal())

	// Terminal states never regress on their own.
	require.ErrorIs(t, w.Transition(StatusPending), ErrInvalidTransition)
	require.ErrorIs(t, w.Requeue(), ErrInvalidTransition)
}

func TestWorkItem_RequeueFailed(t *testing.T) {
	w := NewWorkItem("https://a.com", "https://a.com", 3)
	require.NoError(t, w.Transition(StatusInProgress))
	require.NoError(t, w.Transition(StatusFailed))
	require.ErrorIs(t, w.Transition(StatusPending), ErrInvalidTransition)
	require.NoError(t, w.Requeue())
	assert.Equal(t, StatusPending, w.Status)
}

func TestWorkItem_CancelDowngrade(t *testing.T) {
	w := NewWorkItem("https://a.com", "https://a.com", 0)
	require.NoError(t, w.Transition(StatusInProgress))
	require.NoError(t, w.Transition(StatusPending))
	assert.Equal(t, StatusPending, w.Status)
}
