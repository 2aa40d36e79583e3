// Package chunk splits loaded document text into fixed-size overlapping
// chunks, the unit of embedding and retrieval. Chunk boundaries are
// purely positional; they do not respect document structure.
package chunk

import (
	"github.com/google/uuid"
)

// Default window parameters. 2000/200 is an equally valid configuration.
const (
	DefaultSize    = 1000
	DefaultOverlap = 100
)

// Chunk is a bounded-length text segment tagged with its source file.
type Chunk struct {
	// ID is a fresh opaque identifier, unique per chunk.
	ID string
	// Source is the filename the chunk's text came from.
	Source string
	// Text is the chunk content.
	Text string
}

// Splitter produces fixed-size overlapping chunks measured in runes.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter with the given window size and overlap.
// Non-positive size and negative overlap fall back to the defaults.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split chunks the text of a single source file. Each chunk gets a fresh
// UUID. Empty or whitespace-only input yields no chunks.
func (s *Splitter) Split(source, text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.size - s.overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:     uuid.NewString(),
			Source: source,
			Text:   string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Size returns the configured window size.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured window overlap.
func (s *Splitter) Overlap() int { return s.overlap }
