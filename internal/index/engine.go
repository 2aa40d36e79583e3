package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"docchat/internal/chunk"
	"docchat/internal/embed"
	appErrors "docchat/internal/errors"
	"docchat/internal/loader"
	"docchat/internal/store"
)

const (
	vectorIndexFile = "vectors.hnsw"
	metadataFile    = "metadata.db"
	lockFile        = ".lock"
)

// Config holds the engine's tunables.
type Config struct {
	FilesDir  string
	IndexDir  string
	ChunkSize int
	Overlap   int
}

// Engine keeps the vector index consistent with the contents of the
// files directory. All mutations go through Reconcile, which is
// serialized by an internal mutex so concurrent triggers (uploads,
// watcher events) never interleave.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	loaders  *loader.Registry
	splitter *chunk.Splitter
	embedder embed.Embedder

	vectors store.VectorStore
	meta    store.MetadataStore

	fileLock *flock.Flock
	logger   *slog.Logger

	closed bool
}

// Result summarizes a reconciliation pass.
type Result struct {
	Added   []string
	Removed []string
	Wiped   bool
}

// Changed reports whether the pass modified the index.
func (r *Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// NewEngine opens or creates the index under cfg.IndexDir. A corrupt
// on-disk index is treated as recoverable: the directory is wiped and
// a fresh empty index is created.
func NewEngine(cfg Config, loaders *loader.Registry, embedder embed.Embedder, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = chunk.DefaultOverlap
	}

	if err := os.MkdirAll(cfg.FilesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create files directory: %w", err)
	}
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(cfg.IndexDir, lockFile))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index directory %s is locked by another process", cfg.IndexDir)
	}

	e := &Engine{
		cfg:      cfg,
		loaders:  loaders,
		splitter: chunk.NewSplitter(cfg.ChunkSize, cfg.Overlap),
		embedder: embedder,
		fileLock: fileLock,
		logger:   logger,
	}

	if err := e.openStores(); err != nil {
		e.logger.Warn("index open failed, rebuilding from scratch",
			slog.String("error", err.Error()))
		if wipeErr := e.wipeLocked(); wipeErr != nil {
			_ = fileLock.Unlock()
			return nil, appErrors.New(appErrors.ErrCodeCorruptIndex, "failed to recover corrupt index", wipeErr)
		}
	}

	return e, nil
}

// openStores opens the vector store and the metadata store, loading
// any persisted state.
func (e *Engine) openStores() error {
	vectorCfg := store.DefaultVectorStoreConfig()
	vectorCfg.Dimensions = e.embedder.Dimensions()

	vectors, err := store.NewHNSWStore(vectorCfg)
	if err != nil {
		return err
	}

	indexPath := filepath.Join(e.cfg.IndexDir, vectorIndexFile)
	if _, err := os.Stat(indexPath); err == nil {
		if err := vectors.Load(indexPath); err != nil {
			_ = vectors.Close()
			return fmt.Errorf("load vector index: %w", err)
		}
	}

	meta, err := store.NewSQLiteMetadataStore(filepath.Join(e.cfg.IndexDir, metadataFile))
	if err != nil {
		_ = vectors.Close()
		return err
	}

	e.vectors = vectors
	e.meta = meta
	return nil
}

// Reconcile brings the index in line with the current contents of the
// files directory. Unchanged listings are a cheap no-op. Any failure
// while applying changes wipes the whole index directory: a fresh full
// rebuild is preferred over a partially updated index of unknown state.
func (e *Engine) Reconcile(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}

	current, err := e.listFiles()
	if err != nil {
		return nil, appErrors.New(appErrors.ErrCodeReconcileFailed, "failed to list files directory", err)
	}

	processed, err := e.meta.ProcessedFiles(ctx)
	if err != nil {
		return nil, appErrors.New(appErrors.ErrCodeReconcileFailed, "failed to load processed file set", err)
	}

	added, removed := diffSets(current, processed)
	result := &Result{Added: added, Removed: removed}
	if !result.Changed() {
		return result, nil
	}

	e.logger.Info("reconciling index",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)))

	if err := e.applyChanges(ctx, added, removed); err != nil {
		e.logger.Error("reconciliation failed, wiping index",
			slog.String("error", err.Error()))
		result.Wiped = true
		if wipeErr := e.wipeLocked(); wipeErr != nil {
			return result, appErrors.New(appErrors.ErrCodeCorruptIndex,
				"failed to wipe index after reconcile error", wipeErr)
		}
		return result, appErrors.New(appErrors.ErrCodeReconcileFailed, "reconciliation failed, index was reset", err)
	}

	return result, nil
}

// applyChanges performs the removal and addition work. Any returned
// error triggers a full wipe in the caller.
func (e *Engine) applyChanges(ctx context.Context, added, removed []string) error {
	for _, name := range removed {
		if err := e.removeFile(ctx, name); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	for _, name := range added {
		if err := e.addFile(ctx, name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}

	indexPath := filepath.Join(e.cfg.IndexDir, vectorIndexFile)
	if err := e.vectors.Save(indexPath); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}

	return nil
}

// removeFile drops a file's chunks from both stores.
func (e *Engine) removeFile(ctx context.Context, name string) error {
	ids, err := e.meta.ChunkIDsBySource(ctx, name)
	if err != nil {
		return err
	}

	if len(ids) > 0 {
		if err := e.vectors.Delete(ctx, ids); err != nil {
			return err
		}
		if err := e.meta.DeleteChunks(ctx, ids); err != nil {
			return err
		}
	}

	return e.meta.RemoveProcessedFile(ctx, name)
}

// addFile loads, chunks, embeds and indexes one file. A file that
// yields no text still gets marked processed so it is not retried on
// every pass.
func (e *Engine) addFile(ctx context.Context, name string) error {
	path := filepath.Join(e.cfg.FilesDir, name)

	segments, err := e.loaders.Load(ctx, path)
	if err != nil {
		return err
	}

	var chunks []chunk.Chunk
	for _, seg := range segments {
		chunks = append(chunks, e.splitter.Split(name, seg.Text)...)
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		ids := make([]string, len(chunks))
		records := make([]store.ChunkRecord, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
			ids[i] = c.ID
			records[i] = store.ChunkRecord{ID: c.ID, Source: c.Source, Text: c.Text}
		}

		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return appErrors.New(appErrors.ErrCodeEmbedFailed, "failed to embed chunks", err)
		}

		if err := e.vectors.Add(ctx, ids, vectors); err != nil {
			return err
		}
		if err := e.meta.SaveChunks(ctx, records); err != nil {
			return err
		}
	}

	return e.meta.AddProcessedFiles(ctx, []string{name})
}

// Wipe resets the index to empty: the index directory's contents are
// removed and fresh stores are created. The files directory is untouched.
func (e *Engine) Wipe() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}

	return e.wipeLocked()
}

func (e *Engine) wipeLocked() error {
	if e.vectors != nil {
		_ = e.vectors.Close()
		e.vectors = nil
	}
	if e.meta != nil {
		_ = e.meta.Close()
		e.meta = nil
	}

	entries, err := os.ReadDir(e.cfg.IndexDir)
	if err != nil {
		return fmt.Errorf("read index directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == lockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.cfg.IndexDir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}

	return e.openStores()
}

// Retrieve embeds the query and returns the most relevant chunks. When
// useMMR is set, candidates are fetched and re-ranked for diversity.
func (e *Engine) Retrieve(ctx context.Context, query string, k, fetchK int, lambda float64, useMMR bool) ([]store.ChunkRecord, error) {
	// Embed before taking the lock so a slow embedder does not stall
	// concurrent reconciliation.
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, appErrors.New(appErrors.ErrCodeEmbedFailed, "failed to embed query", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}

	if e.vectors.Count() == 0 {
		return nil, nil
	}

	var results []*store.VectorResult
	if useMMR {
		results, err = e.vectors.SearchMMR(ctx, queryVec, k, fetchK, lambda)
	} else {
		results, err = e.vectors.Search(ctx, queryVec, k)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}

	return e.meta.GetChunks(ctx, ids)
}

// ProcessedFiles returns the sorted names of indexed files.
func (e *Engine) ProcessedFiles(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}

	set, err := e.meta.ProcessedFiles(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ChunkCount returns the number of indexed vectors.
func (e *Engine) ChunkCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.vectors == nil {
		return 0
	}
	return e.vectors.Count()
}

// Close releases the stores and the index lock.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if e.vectors != nil {
		if err := e.vectors.Close(); err != nil {
			firstErr = err
		}
	}
	if e.meta != nil {
		if err := e.meta.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.fileLock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// listFiles returns the current file names in the files directory as a
// set. Subdirectories and dotfiles are ignored.
func (e *Engine) listFiles() (map[string]bool, error) {
	entries, err := os.ReadDir(e.cfg.FilesDir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) > 0 && name[0] == '.' {
			continue
		}
		files[name] = true
	}

	return files, nil
}

// diffSets computes added (in current, not processed) and removed
// (processed, not current) file names, both sorted for deterministic
// processing order.
func diffSets(current, processed map[string]bool) (added, removed []string) {
	for name := range current {
		if !processed[name] {
			added = append(added, name)
		}
	}
	for name := range processed {
		if !current[name] {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
