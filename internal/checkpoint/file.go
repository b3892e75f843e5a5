package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/dealer-scraper/internal/atomicfile"
	"github.com/sells-group/dealer-scraper/internal/model"
)

const fileExt = ".json"

// FileStore keeps one JSON document per session in a directory. Every
// write replaces the whole document atomically.
type FileStore struct {
	fs  afero.Fs
	dir string

	mu       sync.Mutex
	sessions map[string]*fileSession
}

type fileSession struct {
	cp  *model.Checkpoint
	ids []string
}

// fileDoc is the on-disk form.
type fileDoc struct {
	*model.Checkpoint
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir, sessions: make(map[string]*fileSession)}
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Begin writes the initial checkpoint of a session.
func (s *FileStore) Begin(_ context.Context, cp *model.Checkpoint) error {
	ids := cp.IDs()
	if err := cp.Validate(ids); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cp.Clone()
	if err := s.write(c); err != nil {
		return err
	}
	s.sessions[cp.SessionID] = &fileSession{cp: c, ids: ids}
	return nil
}

// RecordOutcome moves itemID into the outcome's set and persists the
// session before returning.
func (s *FileStore) RecordOutcome(ctx context.Context, sessionID, itemID string, out model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	next := sess.cp.Clone()
	if err := next.Apply(itemID, out); err != nil {
		return err
	}
	if err := next.Validate(sess.ids); err != nil {
		return err
	}
	if err := s.write(next); err != nil {
		return err
	}
	sess.cp = next
	return nil
}

// LoadSession reads a session from disk.
func (s *FileStore) LoadSession(ctx context.Context, sessionID string) (*model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.cp.Clone(), nil
}

// session returns the cached session, reading it on first use. Callers
// hold mu.
func (s *FileStore) session(_ context.Context, id string) (*fileSession, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	doc, err := s.read(id)
	if err != nil {
		return nil, err
	}
	ids := doc.IDs()
	if err := doc.Validate(ids); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: session %s", id)
	}
	sess := &fileSession{cp: doc.Checkpoint, ids: ids}
	s.sessions[id] = sess
	return sess, nil
}

func (s *FileStore) read(id string) (*fileDoc, error) {
	data, err := afero.ReadFile(s.fs, s.path(id))
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(ErrNoSession, "%s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read %s", id)
	}
	doc := &fileDoc{Checkpoint: &model.Checkpoint{}}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: parse %s", id)
	}
	for _, m := range []*map[string]model.Entry{&doc.Completed, &doc.Failed, &doc.Pending} {
		if *m == nil {
			*m = make(map[string]model.Entry)
		}
	}
	return doc, nil
}

func (s *FileStore) write(cp *model.Checkpoint) error {
	data, err := json.MarshalIndent(fileDoc{Checkpoint: cp, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal")
	}
	if err := atomicfile.Write(s.fs, s.path(cp.SessionID), data); err != nil {
		return eris.Wrapf(err, "checkpoint: write session %s", cp.SessionID)
	}
	return nil
}

// List summarizes every session in the directory, newest first.
func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, err := afero.ReadDir(s.fs, s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: list %s", s.dir)
	}
	var out []Summary
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		doc, err := s.read(strings.TrimSuffix(name, fileExt))
		if err != nil {
			zap.L().Warn("checkpoint: skipping unreadable session", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, summarize(doc.Checkpoint, doc.UpdatedAt))
	}
	sortNewestFirst(out)
	return out, nil
}

// Latest returns the most recently started session.
func (s *FileStore) Latest(ctx context.Context) (*model.Checkpoint, error) {
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
func (s *FileStore) Prune(ctx context.Context, keep int) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for i := max(keep, 0); i < len(list); i++ {
		id := list[i].ID
		if err := s.fs.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
			return removed, eris.Wrapf(err, "checkpoint: remove %s", id)
		}
		delete(s.sessions, id)
		removed++
	}
	return removed, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
