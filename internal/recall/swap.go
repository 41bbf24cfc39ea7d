package recall

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/store"
)

// historyMarkers identify a raw-history path when the history root itself
// is not configured or the candidate came from another machine's layout.
var historyMarkers = []string{"historique", "history"}

// isRawHistory reports whether path points at a raw interaction log rather
// than a consolidated record.
func (e *Engine) isRawHistory(path string) bool {
	if path == "" {
		return false
	}
	lower := strings.ToLower(filepath.ToSlash(path))
	if e.paths.History != "" {
		root := strings.ToLower(filepath.ToSlash(filepath.Clean(e.paths.History)))
		if strings.HasPrefix(lower, root+"/") {
			return true
		}
	}
	for _, m := range historyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Resolve looks under searchRoot for a consolidated record of the given
// session and turn. It never fails: any problem is treated as "no
// summary", and the caller keeps the raw content.
func (e *Engine) Resolve(ctx context.Context, sessionID, turn, searchRoot string) (*MemorySnippet, bool) {
	sessionID = strings.TrimSpace(sessionID)
	turn = strings.TrimSpace(turn)
	if sessionID == "" || turn == "" || searchRoot == "" || e.store == nil {
		return nil, false
	}

	prefix := filepath.Clean(searchRoot) + string(filepath.Separator)
	key := prefix + "|" + sessionID + "|" + turn
	if v, ok := e.swaps.Get(key); ok {
		s := v.(MemorySnippet)
		return &s, true
	}

	for _, path := range e.swapCandidates(ctx, sessionID, prefix) {
		s, ok := e.matchConsolidated(path, sessionID, turn)
		if !ok {
			continue
		}
		e.swaps.Set(key, *s, cache.DefaultExpiration)
		return s, true
	}
	return nil, false
}

// swapCandidates lists, in order and without duplicates, the documents
// under prefix that mention sessionID in their content or carry it as
// their session tag. At most SwapCandidates paths are returned.
func (e *Engine) swapCandidates(ctx context.Context, sessionID, prefix string) []string {
	limit := e.limits.SwapCandidates
	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] && len(paths) < limit {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	hits, err := e.store.SearchWithin(ctx, `"`+sessionID+`"`, []string{store.FieldContent}, limit, prefix)
	if err != nil {
		e.log.WithError(err).Debug("swap content lookup failed")
	}
	for _, h := range hits {
		add(h.Path)
	}

	if len(paths) < limit {
		docs, err := e.store.FindBySession(ctx, sessionID, prefix, limit)
		if err != nil {
			e.log.WithError(err).Debug("swap session lookup failed")
		}
		for _, d := range docs {
			add(d.Path)
		}
	}
	return paths
}

// matchConsolidated reads path and returns its summary snippet when the
// record belongs to sessionID and its turn equals turn exactly.
func (e *Engine) matchConsolidated(path, sessionID, turn string) (*MemorySnippet, bool) {
	text, err := record.ReadFileSafe(path)
	if err != nil || !strings.Contains(text, sessionID) {
		return nil, false
	}
	in, err := record.Parse([]byte(text))
	if err != nil {
		return nil, false
	}
	if in.SessionID != "" && in.SessionID != sessionID {
		return nil, false
	}
	if in.Turn != turn {
		return nil, false
	}
	return &MemorySnippet{
		Content: in.Text(),
		Title:   filepath.Base(path),
		Type:    TypeSummary,
		Score:   1.0,
	}, true
}
