package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CSVLoader extracts text from CSV files. Each record becomes a line of
// "header: value" pairs so column meaning survives chunking.
type CSVLoader struct{}

// Load reads the whole CSV into a single segment.
func (l *CSVLoader) Load(ctx context.Context, path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	text := renderRows(records)
	if text == "" {
		return nil, nil
	}
	return []Segment{{Source: filepath.Base(path), Text: text}}, nil
}

// XLSXLoader extracts text from Excel workbooks, one segment per sheet.
type XLSXLoader struct{}

// Load reads every sheet of the workbook. Empty sheets are skipped.
func (l *XLSXLoader) Load(ctx context.Context, path string) ([]Segment, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	source := filepath.Base(path)
	var segments []Segment

	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}

		text := renderRows(rows)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Source: source,
			Text:   fmt.Sprintf("Sheet: %s\n%s", sheet, text),
		})
	}

	return segments, nil
}

// renderRows formats tabular data as "header: value" lines, using the
// first row as the header. A single-row table is rendered as-is.
func renderRows(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	header := rows[0]
	var b strings.Builder

	if len(rows) == 1 {
		b.WriteString(strings.Join(header, ", "))
		return strings.TrimSpace(b.String())
	}

	for _, row := range rows[1:] {
		var pairs []string
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				pairs = append(pairs, fmt.Sprintf("%s: %s", strings.TrimSpace(header[i]), cell))
			} else {
				pairs = append(pairs, cell)
			}
		}
		if len(pairs) > 0 {
			b.WriteString(strings.Join(pairs, ", "))
			b.WriteByte('\n')
		}
	}

	return strings.TrimSpace(b.String())
}
