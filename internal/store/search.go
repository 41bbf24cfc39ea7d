package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hurttlocker/recall/internal/textnorm"
)

// Searchable FTS columns.
const (
	FieldContent  = "content"
	FieldFilename = "filename"
)

// DefaultFields are searched when the caller names none.
var DefaultFields = []string{FieldContent, FieldFilename}

var phraseRE = regexp.MustCompile(`"([^"]*)"`)

// BuildMatch renders a user query as an FTS5 OR-group. Every bare word and
// every double-quoted phrase becomes one alternative, so a document matching
// any of them is a hit. Terms are quoted, which keeps FTS5 operators in user
// input from being interpreted. Returns "" when the query has no terms.
func BuildMatch(query string, fields []string) (string, error) {
	colFilter, err := columnFilter(fields)
	if err != nil {
		return "", err
	}

	var terms []string
	seen := map[string]bool{}
	add := func(tokens []string) {
		if len(tokens) == 0 {
			return
		}
		term := `"` + strings.Join(tokens, " ") + `"`
		if seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, colFilter+term)
	}

	for _, m := range phraseRE.FindAllStringSubmatch(query, -1) {
		add(textnorm.WordTokens(m[1]))
	}
	rest := phraseRE.ReplaceAllString(query, " ")
	for _, w := range textnorm.WordTokens(rest) {
		add([]string{w})
	}

	return strings.Join(terms, " OR "), nil
}

func columnFilter(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	var cols []string
	seen := map[string]bool{}
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != FieldContent && f != FieldFilename {
			return "", fmt.Errorf("unknown search field %q", f)
		}
		if !seen[f] {
			seen[f] = true
			cols = append(cols, f)
		}
	}
	if len(cols) == len(DefaultFields) {
		return "", nil
	}
	return "{" + strings.Join(cols, " ") + "} : ", nil
}

// Search runs query against fields, best match first, returning at most
// limit hits.
func (s *SQLiteStore) Search(ctx context.Context, query string, fields []string, limit int) ([]*Hit, error) {
	return s.SearchWithin(ctx, query, fields, limit, "")
}

// SearchWithin is Search restricted to documents whose path starts with
// pathPrefix. An empty prefix searches everything.
func (s *SQLiteStore) SearchWithin(ctx context.Context, query string, fields []string, limit int, pathPrefix string) ([]*Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	match, err := BuildMatch(query, fields)
	if err != nil {
		return nil, err
	}
	if match == "" {
		return nil, nil
	}

	sqlQuery := `SELECT ` + documentColumns + `, bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?`
	args := []any{match}
	if pathPrefix != "" {
		sqlQuery += " AND substr(d.path, 1, length(?)) = ?"
		args = append(args, pathPrefix, pathPrefix)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("FTS query failed: %w", err)
	}
	defer rows.Close()

	var hits []*Hit
	for rows.Next() {
		h := &Hit{}
		var rank float64
		err := rows.Scan(&h.Path, &h.Filename, &h.Content, &h.MemoryType, &h.Timestamp,
			&h.SubjectTag, &h.ActionTag, &h.CategoryTag, &h.SessionID, &h.TurnNumber, &rank)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		// bm25 is negative, more negative is better.
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
