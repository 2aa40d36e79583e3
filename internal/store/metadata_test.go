package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetadataStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := NewSQLiteMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetadataStore_ProcessedFilesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestMetadataStore(t)

	// Given: two files marked processed
	require.NoError(t, s.AddProcessedFiles(ctx, []string{"a.pdf", "b.csv"}))

	// When: reading the set back
	files, err := s.ProcessedFiles(ctx)
	require.NoError(t, err)

	// Then: both are present
	assert.True(t, files["a.pdf"])
	assert.True(t, files["b.csv"])
	assert.Len(t, files, 2)
}

func TestMetadataStore_RemoveProcessedFile(t *testing.T) {
	ctx := context.Background()
	s := newTestMetadataStore(t)

	require.NoError(t, s.AddProcessedFiles(ctx, []string{"a.pdf"}))
	require.NoError(t, s.RemoveProcessedFile(ctx, "a.pdf"))

	files, err := s.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMetadataStore_AddProcessedFilesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestMetadataStore(t)

	require.NoError(t, s.AddProcessedFiles(ctx, []string{"a.pdf"}))
	require.NoError(t, s.AddProcessedFiles(ctx, []string{"a.pdf"}))

	files, err := s.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMetadataStore_ChunksBySource(t *testing.T) {
	ctx := context.Background()
	s := newTestMetadataStore(t)

	// Given: chunks from two sources
	require.NoError(t, s.SaveChunks(ctx, []ChunkRecord{
		{ID: "c1", Source: "a.pdf", Text: "first"},
		{ID: "c2", Source: "a.pdf", Text: "second"},
		{ID: "c3", Source: "b.csv", Text: "third"},
	}))

	// When: listing chunk IDs for one source
	ids, err := s.ChunkIDsBySource(ctx, "a.pdf")
	require.NoError(t, err)

	// Then: only that source's chunks are returned
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
}

func TestMetadataStore_GetChunksPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestMetadataStore(t)

	require.NoError(t, s.SaveChunks(ctx, []ChunkRecord{
		{ID: "c1", Source: "a.pdf", Text: "first"},
		{ID: "c2", Source: "a.pdf", Text: "second"},
	}))

	// When: fetching in reverse order with an unknown ID mixed in
	chunks, err := s.GetChunks(ctx, []string{"c2", "missing", "c1"})
	require.NoError(t, err)

	// Then: order follows the request and unknown IDs are skipped
	require.Len(t, chunks, 2)
	assert.Equal(t, "c2", chunks[0].ID)
	assert.Equal(t, "c1", chunks[1].ID)
}

func TestMetadataStore_DeleteChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestMetadataStore(t)

	require.NoError(t, s.SaveChunks(ctx, []ChunkRecord{
		{ID: "c1", Source: "a.pdf", Text: "first"},
		{ID: "c2", Source: "b.csv", Text: "second"},
	}))

	require.NoError(t, s.DeleteChunks(ctx, []string{"c1"}))

	sources, err := s.ChunkSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b.csv": true}, sources)
}

func TestMetadataStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metadata.db")

	s, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	require.NoError(t, s.AddProcessedFiles(ctx, []string{"a.pdf"}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteMetadataStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	files, err := reopened.ProcessedFiles(ctx)
	require.NoError(t, err)
	assert.True(t, files["a.pdf"])
}
