package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteMetadataStore persists the processed-file set and the
// chunk-to-source mapping in a single SQLite database.
type SQLiteMetadataStore struct {
	db *sql.DB
	mu sync.Mutex

	closed bool
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (or creates) the metadata database at path.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	// Single connection: modernc.org/sqlite serializes writers anyway,
	// and one connection avoids SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteMetadataStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteMetadataStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS processed_files (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS chunks (
	id     TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	text   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create metadata schema: %w", err)
	}
	return nil
}

// ProcessedFiles returns the set of file names already reflected in the index.
func (s *SQLiteMetadataStore) ProcessedFiles(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM processed_files")
	if err != nil {
		return nil, fmt.Errorf("query processed files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		files[name] = true
	}

	return files, rows.Err()
}

// AddProcessedFiles marks file names as processed.
func (s *SQLiteMetadataStore) AddProcessedFiles(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO processed_files (name) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, name); err != nil {
			return fmt.Errorf("insert processed file %q: %w", name, err)
		}
	}

	return tx.Commit()
}

// RemoveProcessedFile unmarks a file name.
func (s *SQLiteMetadataStore) RemoveProcessedFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM processed_files WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete processed file %q: %w", name, err)
	}
	return nil
}

// SaveChunks records chunk records with their source mapping.
func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO chunks (id, source, text) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Text); err != nil {
			return fmt.Errorf("insert chunk %q: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// ChunkIDsBySource returns the IDs of all chunks derived from a source file.
func (s *SQLiteMetadataStore) ChunkIDsBySource(ctx context.Context, source string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chunks WHERE source = ?", source)
	if err != nil {
		return nil, fmt.Errorf("query chunks by source: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetChunks fetches chunk records by ID, preserving the input order.
// Unknown IDs are skipped.
func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("SELECT id, source, text FROM chunks WHERE id IN (%s)", placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]ChunkRecord, len(ids))
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.Source, &c.Text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]ChunkRecord, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			chunks = append(chunks, c)
		}
	}

	return chunks, nil
}

// DeleteChunks removes chunk records by ID.
func (s *SQLiteMetadataStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM chunks WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete chunk %q: %w", id, err)
		}
	}

	return tx.Commit()
}

// ChunkSources returns the distinct set of source file names referenced
// by stored chunks.
func (s *SQLiteMetadataStore) ChunkSources(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT source FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("query chunk sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make(map[string]bool)
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("scan chunk source: %w", err)
		}
		sources[source] = true
	}

	return sources, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}
