package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/embed"
	"docchat/internal/loader"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()

	root := t.TempDir()
	filesDir := filepath.Join(root, "files")
	indexDir := filepath.Join(root, "index")

	e, err := NewEngine(Config{
		FilesDir:  filesDir,
		IndexDir:  indexDir,
		ChunkSize: 200,
		Overlap:   20,
	}, loader.NewRegistry(nil), embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return e, filesDir
}

func writeCSV(t *testing.T, dir, name string) {
	t.Helper()
	content := "name,role\nalice,engineer\nbob,designer\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestReconcile_AddsNewFiles(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)

	// Given: one new file in the files directory
	writeCSV(t, filesDir, "people.csv")

	// When: reconciling
	result, err := e.Reconcile(ctx)
	require.NoError(t, err)

	// Then: the file is indexed and marked processed
	assert.Equal(t, []string{"people.csv"}, result.Added)
	assert.Empty(t, result.Removed)
	assert.Greater(t, e.ChunkCount(), 0)

	processed, err := e.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"people.csv"}, processed)
}

func TestReconcile_NoChangesIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)
	writeCSV(t, filesDir, "people.csv")

	_, err := e.Reconcile(ctx)
	require.NoError(t, err)
	countAfterFirst := e.ChunkCount()

	// When: reconciling again with no file changes
	result, err := e.Reconcile(ctx)
	require.NoError(t, err)

	// Then: nothing happens
	assert.False(t, result.Changed())
	assert.Equal(t, countAfterFirst, e.ChunkCount())
}

func TestReconcile_RemovesDeletedFiles(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)
	writeCSV(t, filesDir, "a.csv")
	writeCSV(t, filesDir, "b.csv")

	_, err := e.Reconcile(ctx)
	require.NoError(t, err)

	// When: one file disappears and we reconcile
	require.NoError(t, os.Remove(filepath.Join(filesDir, "a.csv")))
	result, err := e.Reconcile(ctx)
	require.NoError(t, err)

	// Then: only the remaining file stays indexed
	assert.Equal(t, []string{"a.csv"}, result.Removed)
	processed, err := e.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.csv"}, processed)
}

func TestReconcile_ChunkSourcesSubsetOfProcessed(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)
	writeCSV(t, filesDir, "a.csv")
	writeCSV(t, filesDir, "b.csv")

	_, err := e.Reconcile(ctx)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(filesDir, "b.csv")))
	_, err = e.Reconcile(ctx)
	require.NoError(t, err)

	// Then: every chunk's source is a processed file
	processed, err := e.meta.ProcessedFiles(ctx)
	require.NoError(t, err)
	sources, err := e.meta.ChunkSources(ctx)
	require.NoError(t, err)
	for source := range sources {
		assert.True(t, processed[source], "chunk source %s is not a processed file", source)
	}
}

func TestReconcile_FailureWipesIndex(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)

	// Given: a good file already indexed
	writeCSV(t, filesDir, "good.csv")
	_, err := e.Reconcile(ctx)
	require.NoError(t, err)
	require.Greater(t, e.ChunkCount(), 0)

	// When: an unparseable file arrives
	require.NoError(t, os.WriteFile(filepath.Join(filesDir, "broken.pdf"), []byte("not a pdf"), 0o644))
	result, err := e.Reconcile(ctx)

	// Then: the pass fails and the whole index is reset, previously
	// indexed content included
	require.Error(t, err)
	assert.True(t, result.Wiped)
	assert.Equal(t, 0, e.ChunkCount())

	processed, perr := e.ProcessedFiles(ctx)
	require.NoError(t, perr)
	assert.Empty(t, processed)
}

func TestReconcile_ZeroChunkFileStillMarkedProcessed(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)

	// Given: an image file with no describer configured, so it yields
	// no text
	require.NoError(t, os.WriteFile(filepath.Join(filesDir, "photo.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))

	// When: reconciling twice
	result, err := e.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"photo.png"}, result.Added)

	second, err := e.Reconcile(ctx)
	require.NoError(t, err)

	// Then: the file counts as processed and is not retried
	assert.False(t, second.Changed())
	processed, err := e.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"photo.png"}, processed)
	assert.Equal(t, 0, e.ChunkCount())
}

func TestRetrieve_ReturnsRelevantChunks(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)
	writeCSV(t, filesDir, "people.csv")
	_, err := e.Reconcile(ctx)
	require.NoError(t, err)

	// When: retrieving for a query mentioning indexed content
	chunks, err := e.Retrieve(ctx, "who is alice", 3, 20, 0.5, true)
	require.NoError(t, err)

	// Then: chunks come back tagged with their source
	require.NotEmpty(t, chunks)
	assert.Equal(t, "people.csv", chunks[0].Source)
}

func TestRetrieve_EmptyIndexReturnsNothing(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	chunks, err := e.Retrieve(ctx, "anything", 3, 20, 0.5, false)

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestNewEngine_RecoversFromCorruptIndex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	filesDir := filepath.Join(root, "files")
	indexDir := filepath.Join(root, "index")
	cfg := Config{FilesDir: filesDir, IndexDir: indexDir, ChunkSize: 200, Overlap: 20}

	// Given: an index with persisted state
	e, err := NewEngine(cfg, loader.NewRegistry(nil), embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	writeCSV(t, filesDir, "people.csv")
	_, err = e.Reconcile(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// When: the vector index file is corrupted and the engine reopens
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, "vectors.hnsw"), []byte("garbage"), 0o644))
	reopened, err := NewEngine(cfg, loader.NewRegistry(nil), embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the engine starts empty and a reconcile rebuilds it
	assert.Equal(t, 0, reopened.ChunkCount())
	result, err := reopened.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"people.csv"}, result.Added)
	assert.Greater(t, reopened.ChunkCount(), 0)
}

func TestWipe_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	e, filesDir := newTestEngine(t)
	writeCSV(t, filesDir, "people.csv")
	_, err := e.Reconcile(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Wipe())

	assert.Equal(t, 0, e.ChunkCount())
	processed, err := e.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, processed)
}

// gatedEmbedder blocks single-text embeds until released so tests can
// observe what runs concurrently with an in-flight query embed.
type gatedEmbedder struct {
	embed.Embedder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Embedder.Embed(ctx, text)
}

func TestRetrieve_EmbedDoesNotBlockReconcile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ge := &gatedEmbedder{
		Embedder: embed.NewStaticEmbedder(),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	e, err := NewEngine(Config{
		FilesDir:  filepath.Join(root, "files"),
		IndexDir:  filepath.Join(root, "index"),
		ChunkSize: 200,
		Overlap:   20,
	}, loader.NewRegistry(nil), ge, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	// Given: an indexed file and a query whose embed is in flight
	writeCSV(t, filepath.Join(root, "files"), "people.csv")
	_, err = e.Reconcile(ctx)
	require.NoError(t, err)

	retrieved := make(chan struct{})
	go func() {
		defer close(retrieved)
		_, _ = e.Retrieve(ctx, "who is the engineer", 3, 20, 0.5, false)
	}()
	<-ge.started

	// When: reconciling while the query embed is still blocked
	reconciled := make(chan error, 1)
	go func() {
		_, err := e.Reconcile(ctx)
		reconciled <- err
	}()

	// Then: the reconcile completes without waiting on the embedder
	select {
	case err := <-reconciled:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconcile waited on an in-flight query embed")
	}

	close(ge.release)
	<-retrieved
}
