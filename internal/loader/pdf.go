package loader

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts plain text from PDF files, one segment per page.
type PDFLoader struct{}

// Load reads every page of the PDF and returns its text.
// Pages with no extractable text are skipped.
func (l *PDFLoader) Load(ctx context.Context, path string) ([]Segment, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	source := filepath.Base(path)
	var segments []Segment

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageText(page)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		segments = append(segments, Segment{Source: source, Text: text})
	}

	return segments, nil
}

// extractPageText concatenates the text rows of a single page.
func extractPageText(page pdf.Page) (string, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, row := range rows {
		for _, word := range row.Content {
			buf.WriteString(word.S)
		}
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}
