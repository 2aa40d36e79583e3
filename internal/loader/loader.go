// Package loader turns source documents into plain text segments.
// A registry dispatches on file extension to a format-specific Loader;
// every produced segment is tagged with the source filename so chunks
// can later be deleted when the file is removed.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Segment is a piece of extracted text tagged with its source file.
type Segment struct {
	// Source is the base filename the text came from.
	Source string
	// Text is the extracted plain text.
	Text string
}

// Loader extracts text segments from a single file.
type Loader interface {
	Load(ctx context.Context, path string) ([]Segment, error)
}

// AllowedTypes maps supported file extensions (without dot) to the
// content type an upload must declare for that extension.
var AllowedTypes = map[string]string{
	"pdf":  "application/pdf",
	"csv":  "text/csv",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"json": "application/json",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

// Ext returns the lowercase extension of filename without the dot.
func Ext(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// Supported reports whether the filename has an ingestible extension.
func Supported(filename string) bool {
	_, ok := AllowedTypes[Ext(filename)]
	return ok
}

// Registry dispatches files to format-specific loaders by extension.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry creates a registry with loaders for every supported
// extension. The describer handles image files; it may be nil, in which
// case images load as zero segments.
func NewRegistry(describer Describer) *Registry {
	img := &ImageLoader{Describer: describer}
	return &Registry{
		loaders: map[string]Loader{
			"pdf":  &PDFLoader{},
			"csv":  &CSVLoader{},
			"xlsx": &XLSXLoader{},
			"json": &JSONLoader{},
			"jpg":  img,
			"jpeg": img,
			"png":  img,
		},
	}
}

// Load extracts text segments from the file at path.
// Returns an error for unsupported extensions and on any parse failure;
// a parse failure fails the whole reconciliation pass.
func (r *Registry) Load(ctx context.Context, path string) ([]Segment, error) {
	ext := Ext(path)
	l, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("no loader registered for extension %q", ext)
	}
	segments, err := l.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return segments, nil
}
