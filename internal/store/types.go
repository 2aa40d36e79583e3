// Package store is the persistence layer for indexed data: an HNSW
// vector index for chunk embeddings and a SQLite metadata store tracking
// processed source files and the chunk-to-source mapping.
package store

import (
	"context"
	"fmt"
)

// ChunkRecord is a persisted chunk: its identifier, source filename,
// and text. The text is stored so retrieval can hand chunk contents to
// the chat model without re-reading source files.
type ChunkRecord struct {
	ID     string
	Source string
	Text   string
}

// VectorResult is a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector
// store. Dimensions is left zero for the caller to fill in once the
// embedding dimension is known.
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{
		Metric:   "cos",
		M:        16,
		EfSearch: 20,
	}
}

// VectorStore provides semantic search over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// SearchMMR finds k results balancing similarity against diversity.
	// fetchK is the candidate pool size; lambda trades relevance (1.0)
	// against diversity (0.0).
	SearchMMR(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]*VectorResult, error)

	// Delete removes vectors by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists the processed-file set and chunk metadata.
// Implementations must keep both consistent within a single Commit:
// after every successful reconciliation pass, the set of distinct
// sources in the chunk table is a subset of the processed-file set.
type MetadataStore interface {
	// ProcessedFiles returns the set of source filenames already
	// incorporated into the index.
	ProcessedFiles(ctx context.Context) (map[string]bool, error)

	// AddProcessedFiles records filenames as processed.
	AddProcessedFiles(ctx context.Context, names []string) error

	// RemoveProcessedFile removes a filename from the processed set.
	RemoveProcessedFile(ctx context.Context, name string) error

	// SaveChunks persists chunk records.
	SaveChunks(ctx context.Context, chunks []ChunkRecord) error

	// ChunkIDsBySource returns every chunk ID whose source equals name.
	ChunkIDsBySource(ctx context.Context, name string) ([]string, error)

	// GetChunks returns the records for the given IDs, in input order.
	// Unknown IDs are skipped.
	GetChunks(ctx context.Context, ids []string) ([]ChunkRecord, error)

	// DeleteChunks removes chunk records by ID.
	DeleteChunks(ctx context.Context, ids []string) error

	// ChunkSources returns the distinct source filenames present in the
	// chunk table.
	ChunkSources(ctx context.Context) (map[string]bool, error)

	// Lifecycle
	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
