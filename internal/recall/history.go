package recall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hurttlocker/recall/internal/record"
)

// InteractionGlob matches raw interaction records in the history root.
const InteractionGlob = "interaction_*.json"

type timedPath struct {
	path    string
	modTime time.Time
}

// recentInteractions lists interaction records in dir, newest first.
func recentInteractions(dir string) ([]timedPath, error) {
	matches, err := filepath.Glob(filepath.Join(dir, InteractionGlob))
	if err != nil {
		return nil, err
	}
	files := make([]timedPath, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, timedPath{path: m, modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

// History returns the last limit interactions in chronological order, each
// replaced by its consolidated summary when one exists. limit <= 0 uses
// HistoryRecent.
func (e *Engine) History(ctx context.Context, limit int) (*SearchResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = e.limits.HistoryRecent
	}
	if e.paths.History == "" {
		return nil, fmt.Errorf("%w: history", ErrPathNotConfigured)
	}
	if _, err := os.Stat(e.paths.History); err != nil {
		return newResult(nil, 0, start), nil
	}

	files, err := recentInteractions(e.paths.History)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	found := len(files)
	if len(files) > limit {
		files = files[:limit]
	}

	var snippets []MemorySnippet
	skipped := 0
	for _, f := range files {
		text, err := record.ReadFileSafe(f.path)
		if err != nil {
			e.log.WithError(err).Warnf("history record unreadable: %s", filepath.Base(f.path))
			skipped++
			continue
		}
		in, err := record.Parse([]byte(text))
		if err != nil {
			e.log.WithError(err).Warnf("history record corrupt: %s", filepath.Base(f.path))
			skipped++
			continue
		}

		if in.SessionID != "" && in.Turn != "" {
			if sum, ok := e.Resolve(ctx, in.SessionID, in.Turn, e.paths.Persistent); ok {
				snippets = append(snippets, *sum)
				continue
			}
		}
		snippets = append(snippets, MemorySnippet{
			Content: text,
			Title:   filepath.Base(f.path),
			Type:    TypeRawHistory,
			Score:   1.0,
		})
	}

	// Oldest first, as a transcript reads.
	for i, j := 0, len(snippets)-1; i < j; i, j = i+1, j-1 {
		snippets[i], snippets[j] = snippets[j], snippets[i]
	}

	res := newResult(snippets, found, start)
	if skipped > 0 {
		res.degrade(fmt.Sprintf("%d history record(s) skipped", skipped))
	}
	return res, nil
}

// RecentExchanges returns the last limit interactions as alternating
// prompt and response strings, oldest first. It bypasses the index and
// never fails; corrupt records are skipped.
func (e *Engine) RecentExchanges(ctx context.Context, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	if e.paths.History == "" {
		return nil
	}
	files, err := recentInteractions(e.paths.History)
	if err != nil {
		e.log.WithError(err).Error("reading raw history")
		return nil
	}
	if len(files) > limit {
		files = files[:limit]
	}

	var out []string
	for i := len(files) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}
		in, err := record.Load(files[i].path)
		if err != nil {
			e.log.WithError(err).Warnf("corrupt history record skipped: %s", filepath.Base(files[i].path))
			continue
		}
		if in.Prompt != "" {
			out = append(out, in.Prompt)
		}
		if in.Response != "" {
			out = append(out, in.Response)
		}
	}
	return out
}
