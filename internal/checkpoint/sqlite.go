package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dealer-scraper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Each item is one
// row with a single status column, so the partition holds by construction;
// each outcome is one transaction.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: mkdir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	item_id     TEXT NOT NULL,
	url         TEXT NOT NULL,
	input_index INTEGER NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
	rooftops    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	records     TEXT,
	at          DATETIME,
	PRIMARY KEY (session_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_items_session_status ON items(session_id, status);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Begin inserts the session and every item in one transaction.
func (s *SQLiteStore) Begin(ctx context.Context, cp *model.Checkpoint) error {
	if err := cp.Validate(cp.IDs()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, updated_at) VALUES (?, ?, ?)`,
		cp.SessionID, cp.StartedAt.UTC(), now,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert session %s", cp.SessionID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (session_id, item_id, url, input_index, status, rooftops, error, records, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare items")
	}
	defer stmt.Close() //nolint:errcheck

	sets := []struct {
		status model.WorkStatus
		m      map[string]model.Entry
	}{
		{model.StatusCompleted, cp.Completed},
		{model.StatusFailed, cp.Failed},
		{model.StatusPending, cp.Pending},
	}
	for _, set := range sets {
		for id, e := range set.m {
			records, err := marshalRecords(e.Records)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, cp.SessionID, id, e.URL, e.InputIndex, string(set.status),
				e.Rooftops, e.Error, records, nullTime(e.At)); err != nil {
				return eris.Wrapf(err, "sqlite: insert item %s", id)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit begin")
}

// RecordOutcome updates one item row in a transaction.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, sessionID, itemID string, out model.Outcome) error {
	switch out.Status {
	case model.StatusCompleted, model.StatusFailed, model.StatusPending:
	default:
		return eris.Errorf("checkpoint: outcome status %q is not durable", out.Status)
	}
	records, errText := out.Records, out.Error
	if out.Status == model.StatusPending {
		records, errText = nil, ""
	}
	data, err := marshalRecords(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, url = ?, input_index = ?, rooftops = ?, error = ?, records = ?, at = ?
		 WHERE session_id = ? AND item_id = ?`,
		string(out.Status), out.URL, out.InputIndex, out.Rooftops, errText, data, nullTime(out.At),
		sessionID, itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update item %s", itemID)
	}
	if err := checkRowsAffected(res, "item", sessionID+"/"+itemID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), sessionID); err != nil {
		return eris.Wrapf(err, "sqlite: touch session %s", sessionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit outcome")
}

// LoadSession rebuilds a checkpoint from its rows.
func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	var started time.Time
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM sessions WHERE id = ?`, sessionID).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNoSession, "%s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, url, input_index, status, rooftops, error, records, at
		 FROM items WHERE session_id = ? ORDER BY input_index`, sessionID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list items %s", sessionID)
	}
	defer rows.Close() //nolint:errcheck

	cp := model.NewCheckpoint(sessionID, started, nil)
	for rows.Next() {
		var (
			e       model.Entry
			status  string
			records sql.NullString
			at      sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.InputIndex, &status, &e.Rooftops, &e.Error, &records, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		if at.Valid {
			e.At = at.Time
		}
		if records.Valid && records.String != "" {
			if err := json.Unmarshal([]byte(records.String), &e.Records); err != nil {
				return nil, eris.Wrapf(err, "sqlite: parse records of %s", e.ID)
			}
		}
		switch model.WorkStatus(status) {
		case model.StatusCompleted:
			cp.Completed[e.ID] = e
		case model.StatusFailed:
			cp.Failed[e.ID] = e
		default:
			cp.Pending[e.ID] = e
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate items")
	}
	return cp, nil
}

// List summarizes every session, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.updated_at,
			COALESCE(SUM(CASE WHEN i.status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM sessions s LEFT JOIN items i ON i.session_id = s.id
		GROUP BY s.id, s.started_at, s.updated_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.StartedAt, &sm.UpdatedAt, &sm.Completed, &sm.Failed, &sm.Pending); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate sessions")
	}
	sortNewestFirst(out)
	return out, nil
}

// Latest returns the most recently started session.
func (s *SQLiteStore) Latest(ctx context.Context) (*model.Checkpoint, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoSession
	}
	return s.LoadSession(ctx, list[0].ID)
}

// Prune removes all but the keep newest sessions.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for i := max(keep, 0); i < len(list); i++ {
		if err := s.deleteSession(ctx, list[i].ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *SQLiteStore) deleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE session_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete items %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete")
}

func marshalRecords(records []model.DealerRecord) (any, error) {
	if len(records) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal records")
	}
	return string(b), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
