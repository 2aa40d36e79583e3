package loader

import (
	"context"
	"path/filepath"
	"strings"
)

// Describer produces a text description of an image file.
// Implemented by a vision-capable chat model.
type Describer interface {
	Describe(ctx context.Context, path string) (string, error)
}

// ImageLoader turns images into text via an optional Describer.
// Without a describer, or when the description comes back empty, the
// image yields zero segments: the file is still recorded as processed
// even though nothing gets indexed.
type ImageLoader struct {
	Describer Describer
}

// Load describes the image, returning at most one segment.
func (l *ImageLoader) Load(ctx context.Context, path string) ([]Segment, error) {
	if l.Describer == nil {
		return nil, nil
	}

	description, err := l.Describer.Describe(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		return nil, nil
	}

	return []Segment{{
		Source: filepath.Base(path),
		Text:   description,
	}}, nil
}
