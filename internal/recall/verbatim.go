package recall

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/store"
)

// Verbatim finds history records containing phrase exactly, byte for byte.
//
// The index is searched first with the lower-cased phrase, which is cheap
// but lossy (case, punctuation). Each distinct file it names is then read
// from the history root and kept only if the original phrase is a literal,
// case-sensitive substring.
func (e *Engine) Verbatim(ctx context.Context, phrase string) (*SearchResult, error) {
	start := time.Now()
	if e.paths.History == "" {
		return nil, fmt.Errorf("%w: history", ErrPathNotConfigured)
	}
	if strings.TrimSpace(phrase) == "" {
		return newResult(nil, 0, start), nil
	}

	query := `"` + strings.ToLower(strings.ReplaceAll(phrase, `"`, " ")) + `"`
	hits, err := e.store.Search(ctx, query, []string{store.FieldContent}, e.limits.VerbatimOverfetch)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	var (
		confirmed []MemorySnippet
		seen      = map[string]bool{}
		failures  []string
	)
	for _, h := range hits {
		if seen[h.Filename] {
			continue
		}
		seen[h.Filename] = true

		path := filepath.Join(e.paths.History, h.Filename)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		text, err := record.ReadFileSafe(path)
		if err != nil {
			if !errors.Is(err, record.ErrMissingFile) {
				failures = append(failures, h.Filename)
				e.log.WithError(err).Warn("verbatim candidate unreadable")
			}
			continue
		}
		if !strings.Contains(text, phrase) {
			continue
		}
		confirmed = append(confirmed, MemorySnippet{
			Content: text,
			Title:   h.Filename,
			Type:    TypeVerbatim,
			Score:   10.0,
		})
	}

	res := newResult(confirmed, len(hits), start)
	if len(failures) > 0 {
		res.degrade(fmt.Sprintf("%d candidate(s) unreadable: %s", len(failures), strings.Join(failures, ", ")))
	}
	return res, nil
}
