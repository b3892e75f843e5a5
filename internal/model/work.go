// Package model defines the data types shared across the dealer extraction engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"
)

// WorkStatus is the processing state of a WorkItem.
type WorkStatus string

const (
	StatusPending    WorkStatus = "pending"
	StatusInProgress WorkStatus = "in_progress"
	StatusCompleted  WorkStatus = "completed"
	StatusFailed     WorkStatus = "failed"
)

// IsTerminal reports whether s is Completed or Failed.
func (s WorkStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrInvalidTransition is returned when a WorkItem status change violates
// the pending -> in_progress -> {completed|failed} state machine.
var ErrInvalidTransition = eris.New("model: invalid work item transition")

// allowedTransitions lists the transitions a worker may perform. Failed items
// return to pending only through Requeue.
var allowedTransitions = map[WorkStatus][]WorkStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusPending},
}

// WorkItem is one input URL to process.
type WorkItem struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	InputIndex int        `json:"input_index"`
	Status     WorkStatus `json:"status"`
}

// NewWorkItem creates a pending WorkItem. normalizedURL is the canonical form
// used for the stable id; rawURL is kept for fetching and output.
func NewWorkItem(rawURL, normalizedURL string, inputIndex int) WorkItem {
	return WorkItem{
		ID:         WorkItemID(normalizedURL),
		URL:        rawURL,
		InputIndex: inputIndex,
		Status:     StatusPending,
	}
}

// WorkItemID returns the stable id for a normalized URL.
func WorkItemID(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:8])
}

// Transition moves the item to the given status, enforcing the state machine.
// in_progress -> pending is the cancellation downgrade.
func (w *WorkItem) Transition(to WorkStatus) error {
	for _, allowed := range allowedTransitions[w.Status] {
		if allowed == to {
			w.Status = to
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "%s: %s -> %s", w.ID, w.Status, to)
}

// Requeue moves a failed item back to pending. It is the explicit retry
// request; nothing inside a run calls it automatically.
func (w *WorkItem) Requeue() error {
	if w.Status != StatusFailed {
		return eris.Wrapf(ErrInvalidTransition, "%s: requeue from %s", w.ID, w.Status)
	}
	w.Status = StatusPending
	return nil
}
