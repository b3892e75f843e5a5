// Package checkpoint persists the durable completed/failed/pending partition
// of a run so it can be resumed.
package checkpoint

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/sells-group/dealer-scraper/internal/config"
	"github.com/sells-group/dealer-scraper/internal/model"
)

// ErrNoSession is returned when a session does not exist.
var ErrNoSession = eris.New("checkpoint: no such session")

// Summary describes a stored session.
type Summary struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
}

// Total returns the number of tracked items.
func (s Summary) Total() int { return s.Completed + s.Failed + s.Pending }

// Store is the durable checkpoint. RecordOutcome is the only mutation after
// Begin; it returns after the new partition is durable, and a failure
// leaves the previous durable state in place. Implementations serialize
// writers.
type Store interface {
	Begin(ctx context.Context, cp *model.Checkpoint) error
	RecordOutcome(ctx context.Context, sessionID, itemID string, out model.Outcome) error
	LoadSession(ctx context.Context, sessionID string) (*model.Checkpoint, error)
	Latest(ctx context.Context) (*model.Checkpoint, error)
	List(ctx context.Context) ([]Summary, error)
	Prune(ctx context.Context, keep int) (int, error)
	Close() error
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return uuid.New().String()
}

// Open returns the store selected by cfg.
func Open(cfg config.CheckpointConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		st, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(context.Background()); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case "file", "":
		return NewFileStore(afero.NewOsFs(), cfg.Dir), nil
	default:
		return nil, eris.Errorf("checkpoint: unknown driver %q", cfg.Driver)
	}
}

func summarize(cp *model.Checkpoint, updated time.Time) Summary {
	return Summary{
		ID:        cp.SessionID,
		StartedAt: cp.StartedAt,
		UpdatedAt: updated,
		Completed: len(cp.Completed),
		Failed:    len(cp.Failed),
		Pending:   len(cp.Pending),
	}
}

// sortNewestFirst orders summaries by start time, newest first.
func sortNewestFirst(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].StartedAt.Equal(s[j].StartedAt) {
			return s[i].ID > s[j].ID
		}
		return s[i].StartedAt.After(s[j].StartedAt)
	})
}
