package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Extracted is the indexable view of one memory file.
type Extracted struct {
	Content   string
	Subject   string
	Action    string
	Category  string
	SessionID string
	Turn      int
}

// Extractor turns one file format into indexable text.
type Extractor interface {
	// CanHandle returns true if this extractor supports the given path.
	CanHandle(path string) bool

	// Extract reads the file and returns its indexable text and tags.
	Extract(path string) (*Extracted, error)
}

// Extractors lists the supported formats in dispatch order.
var Extractors = []Extractor{
	&JSONExtractor{},
	&JSONLinesExtractor{},
	&TextExtractor{},
}

// skippedKeys never contribute to indexed text. They are identifiers, not
// content, and would drown real terms in opaque tokens.
var skippedKeys = map[string]bool{
	"id":            true,
	"session_id":    true,
	"ref_vectoriel": true,
	"vector_ref":    true,
}

// Supported reports whether any extractor handles path.
func Supported(path string) bool {
	for _, e := range Extractors {
		if e.CanHandle(path) {
			return true
		}
	}
	return false
}

// ExtractFile dispatches path to the first extractor that handles it.
func ExtractFile(path string) (*Extracted, error) {
	for _, e := range Extractors {
		if e.CanHandle(path) {
			return e.Extract(path)
		}
	}
	return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
}

// JSONExtractor handles .json files: interaction records, rules and
// consolidated summaries.
type JSONExtractor struct{}

// CanHandle returns true for .json files.
func (j *JSONExtractor) CanHandle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Extract flattens every string leaf of the document, skipping identifier
// keys, and lifts classification tags, session and turn into fields.
func (j *JSONExtractor) Extract(path string) (*Extracted, error) {
	text, err := ReadFileSafe(path)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", filepath.Base(path), err)
	}

	out := &Extracted{Content: Flatten(raw)}
	if in, err := Parse([]byte(text)); err == nil {
		out.SessionID = in.SessionID
		out.Turn = in.TurnNumber()
		if c := in.Classification; c != nil {
			out.Subject, out.Action, out.Category = c.Subject, c.Action, c.Category
		}
	}
	return out, nil
}

// JSONLinesExtractor handles .jsonl files. Each line is flattened on its
// own; malformed lines are dropped rather than failing the whole file.
type JSONLinesExtractor struct{}

// CanHandle returns true for .jsonl files.
func (j *JSONLinesExtractor) CanHandle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

// Extract flattens each well-formed line and joins them with newlines.
func (j *JSONLinesExtractor) Extract(path string) (*Extracted, error) {
	text, err := ReadFileSafe(path)
	if err != nil {
		return nil, err
	}

	var parts []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var raw any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		if flat := Flatten(raw); flat != "" {
			parts = append(parts, flat)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", filepath.Base(path), err)
	}
	return &Extracted{Content: strings.Join(parts, "\n")}, nil
}

// TextExtractor handles .txt and .md files verbatim.
type TextExtractor struct{}

// CanHandle returns true for .txt and .md files.
func (t *TextExtractor) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".md"
}

// Extract returns the file content with invalid UTF-8 replaced.
func (t *TextExtractor) Extract(path string) (*Extracted, error) {
	text, err := ReadFileSafe(path)
	if err != nil {
		return nil, err
	}
	return &Extracted{Content: text}, nil
}

// Flatten concatenates the scalar leaves of a decoded JSON value with
// spaces. Object keys are visited in sorted order so output is stable.
func Flatten(v any) string {
	var parts []string
	flatten(v, &parts)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func flatten(v any, parts *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			if !skippedKeys[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(t[k], parts)
		}
	case []any:
		for _, elem := range t {
			flatten(elem, parts)
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			*parts = append(*parts, s)
		}
	case float64:
		*parts = append(*parts, fmt.Sprintf("%g", t))
	case bool:
		*parts = append(*parts, fmt.Sprintf("%t", t))
	}
}
