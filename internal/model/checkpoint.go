package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ErrPartitionViolated is returned when a checkpoint's completed, failed and
// pending sets do not partition the input set.
var ErrPartitionViolated = eris.New("model: checkpoint partition violated")

// Outcome is the terminal (or downgraded) result of one WorkItem.
type Outcome struct {
	Status     WorkStatus     `json:"status"`
	URL        string         `json:"url"`
	InputIndex int            `json:"input_index"`
	Rooftops   int            `json:"rooftops,omitempty"`
	Error      string         `json:"error,omitempty"`
	Records    []DealerRecord `json:"records,omitempty"`
	At         time.Time      `json:"at"`
}

// Entry is the durable state of one input URL in a checkpoint.
type Entry struct {
	ID         string         `json:"id"`
	URL        string         `json:"url"`
	InputIndex int            `json:"input_index"`
	Rooftops   int            `json:"rooftops,omitempty"`
	Error      string         `json:"error,omitempty"`
	Records    []DealerRecord `json:"records,omitempty"`
	At         time.Time      `json:"at,omitempty"`
}

// Checkpoint is the durable snapshot of a session. Keys are WorkItem ids.
type Checkpoint struct {
	SessionID string           `json:"session_id"`
	StartedAt time.Time        `json:"started_at"`
	Completed map[string]Entry `json:"completed"`
	Failed    map[string]Entry `json:"failed"`
	Pending   map[string]Entry `json:"pending"`
}

// NewCheckpoint creates a checkpoint with every item pending.
func NewCheckpoint(sessionID string, startedAt time.Time, items []WorkItem) *Checkpoint {
	cp := &Checkpoint{
		SessionID: sessionID,
		StartedAt: startedAt,
		Completed: make(map[string]Entry),
		Failed:    make(map[string]Entry),
		Pending:   make(map[string]Entry, len(items)),
	}
	for _, it := range items {
		cp.Pending[it.ID] = Entry{ID: it.ID, URL: it.URL, InputIndex: it.InputIndex}
	}
	return cp
}

// Total returns the number of items tracked.
func (c *Checkpoint) Total() int {
	return len(c.Completed) + len(c.Failed) + len(c.Pending)
}

// StatusOf returns which set holds id.
func (c *Checkpoint) StatusOf(id string) (WorkStatus, bool) {
	if _, ok := c.Completed[id]; ok {
		return StatusCompleted, true
	}
	if _, ok := c.Failed[id]; ok {
		return StatusFailed, true
	}
	if _, ok := c.Pending[id]; ok {
		return StatusPending, true
	}
	return "", false
}

// Apply moves id into the set named by the outcome status. Only completed,
// failed and pending are durable; in_progress is rejected.
func (c *Checkpoint) Apply(id string, out Outcome) error {
	if _, ok := c.StatusOf(id); !ok {
		return eris.Errorf("model: checkpoint %s has no item %s", c.SessionID, id)
	}
	entry := Entry{
		ID:         id,
		URL:        out.URL,
		InputIndex: out.InputIndex,
		Rooftops:   out.Rooftops,
		Error:      out.Error,
		Records:    out.Records,
		At:         out.At,
	}
	delete(c.Completed, id)
	delete(c.Failed, id)
	delete(c.Pending, id)
	switch out.Status {
	case StatusCompleted:
		c.Completed[id] = entry
	case StatusFailed:
		c.Failed[id] = entry
	case StatusPending:
		entry.Records = nil
		entry.Error = ""
		c.Pending[id] = entry
	default:
		return eris.Errorf("model: outcome status %q is not durable", out.Status)
	}
	return nil
}

// Validate checks that completed, failed and pending are pairwise disjoint
// and that their union is exactly ids.
func (c *Checkpoint) Validate(ids []string) error {
	seen := make(map[string]int, c.Total())
	for _, set := range []map[string]Entry{c.Completed, c.Failed, c.Pending} {
		for id := range set {
			seen[id]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			return eris.Wrapf(ErrPartitionViolated, "id %s in %d sets", id, n)
		}
	}
	if len(seen) != len(ids) {
		return eris.Wrapf(ErrPartitionViolated, "tracked %d ids, expected %d", len(seen), len(ids))
	}
	for _, id := range ids {
		if seen[id] == 0 {
			return eris.Wrapf(ErrPartitionViolated, "id %s missing", id)
		}
	}
	return nil
}

// IDs returns every tracked id.
func (c *Checkpoint) IDs() []string {
	ids := make([]string, 0, c.Total())
	for _, set := range []map[string]Entry{c.Completed, c.Failed, c.Pending} {
		for id := range set {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep copy of the set maps (records are shared; they are immutable).
func (c *Checkpoint) Clone() *Checkpoint {
	out := &Checkpoint{
		SessionID: c.SessionID,
		StartedAt: c.StartedAt,
		Completed: make(map[string]Entry, len(c.Completed)),
		Failed:    make(map[string]Entry, len(c.Failed)),
		Pending:   make(map[string]Entry, len(c.Pending)),
	}
	for k, v := range c.Completed {
		out.Completed[k] = v
	}
	for k, v := range c.Failed {
		out.Failed[k] = v
	}
	for k, v := range c.Pending {
		out.Pending[k] = v
	}
	return out
}
