package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	appErrors "docchat/internal/errors"
)

// Store persists sessions as one JSON file per session under a
// directory. Writes go through a temp-file-and-rename so a crash never
// leaves a half-written session behind.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a session store rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex guarding one session's file.
func (st *Store) lockFor(id string) *sync.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()

	l, ok := st.locks[id]
	if !ok {
		l = &sync.Mutex{}
		st.locks[id] = l
	}
	return l
}

// Create makes a new session with a placeholder title and persists it.
func (st *Store) Create() (*Session, error) {
	st.mu.Lock()
	count, err := st.countLocked()
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:      uuid.NewString(),
		Title:   fmt.Sprintf("Session %d", count+1),
		History: []Message{},
	}

	if err := st.save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get loads a session by ID. A missing file is a not-found error; a
// malformed file is treated as a session with empty history so one
// corrupt document never bricks the chat.
func (st *Store) Get(id string) (*Session, error) {
	l := st.lockFor(id)
	l.Lock()
	defer l.Unlock()

	return st.load(id)
}

// Mutate loads a session, applies fn and persists the result, all
// under the session's lock.
func (st *Store) Mutate(id string, fn func(*Session) error) (*Session, error) {
	l := st.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s, err := st.load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := st.save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes a session's file.
func (st *Store) Delete(id string) error {
	l := st.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path := st.path(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return appErrors.NotFoundError(appErrors.ErrCodeSessionNotFound, "session "+id)
		}
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	st.mu.Lock()
	delete(st.locks, id)
	st.mu.Unlock()

	return nil
}

// List returns summaries for all sessions, sorted by title.
func (st *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")

		s, err := st.load(id)
		if err != nil {
			st.logger.Warn("skipping unreadable session",
				slog.String("session_id", id),
				slog.String("error", err.Error()))
			continue
		}
		summaries = append(summaries, Summary{ID: s.ID, Title: s.Title})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Title < summaries[j].Title
	})
	return summaries, nil
}

// Exists reports whether a session file is present.
func (st *Store) Exists(id string) bool {
	_, err := os.Stat(st.path(id))
	return err == nil
}

func (st *Store) path(id string) string {
	return filepath.Join(st.dir, id+".json")
}

// countLocked counts session files. Caller must hold st.mu.
func (st *Store) countLocked() (int, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return 0, fmt.Errorf("read sessions directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			count++
		}
	}
	return count, nil
}

func (st *Store) load(id string) (*Session, error) {
	data, err := os.ReadFile(st.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.NotFoundError(appErrors.ErrCodeSessionNotFound, "session "+id)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		st.logger.Warn("session file is malformed, treating as empty",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		return &Session{ID: id, Title: "Session", History: []Message{}}, nil
	}

	s.ID = id
	if s.History == nil {
		s.History = []Message{}
	}
	return &s, nil
}

// save writes the session atomically.
func (st *Store) save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	path := st.path(s.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename session %s: %w", s.ID, err)
	}
	return nil
}
