package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// JSONLoader extracts text from JSON documents by flattening the value
// tree into "path: value" lines.
type JSONLoader struct{}

// Load parses the JSON file into a single flattened segment.
func (l *JSONLoader) Load(ctx context.Context, path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	var lines []string
	flattenJSON("", value, &lines)
	if len(lines) == 0 {
		return nil, nil
	}

	return []Segment{{
		Source: filepath.Base(path),
		Text:   strings.Join(lines, "\n"),
	}}, nil
}

// flattenJSON walks the value tree depth-first, emitting one line per
// scalar leaf. Object keys are visited in sorted order so output is
// deterministic.
func flattenJSON(prefix string, value any, lines *[]string) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinPath(prefix, k), v[k], lines)
		}
	case []any:
		for i, item := range v {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), item, lines)
		}
	case nil:
		// Skip nulls; they carry no retrievable text.
	default:
		*lines = append(*lines, fmt.Sprintf("%s: %v", prefix, v))
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
