package recall

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/vector"
)

const (
	emptyContentMarker = "ERREUR_CONTENU_VIDE"
	untitledVector     = "Souvenir_Vectoriel"
)

// SearchOption adjusts a single ContextSearch call.
type SearchOption func(*searchOptions)

type searchOptions struct {
	rules bool
}

// WithRules ranks the semantic rules matching the query alongside the
// memories.
func WithRules() SearchOption {
	return func(o *searchOptions) { o.rules = true }
}

// ContextSearch is the main retrieval path: over-fetch from the vector
// engine, swap raw history for consolidated summaries, boost by intent,
// collapse duplicates, then keep the best FinalResults snippets.
//
// A missing vector engine or persistent root is a configuration error and
// is returned as such; an empty result always means nothing matched.
func (e *Engine) ContextSearch(ctx context.Context, query string, intent *Intent, opts ...SearchOption) (*SearchResult, error) {
	start := time.Now()
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !e.vector.Available() {
		return nil, vector.ErrEngineUnavailable
	}
	if e.paths.Persistent == "" {
		return nil, fmt.Errorf("%w: persistent", ErrPathNotConfigured)
	}

	candidates, err := e.vector.Query(ctx, query, e.limits.VectorTopK)
	if err != nil {
		return nil, err
	}

	snippets := make([]MemorySnippet, 0, len(candidates))
	swapped := 0
	for _, c := range candidates {
		s := snippetFromCandidate(c)
		if c.SessionID != "" && c.Turn != "" && e.isRawHistory(c.File) {
			if sum, ok := e.Resolve(ctx, c.SessionID, c.Turn, e.paths.Persistent); ok {
				// The summary's title drives the intent boost below.
				s.Content = sum.Content
				s.Title = sum.Title
				s.Type = TypeConsolidated
				swapped++
			}
		}
		snippets = append(snippets, s)
	}

	if intent != nil {
		Boost(snippets, BoostTokens(intent), e.limits.IntentBoost)
	}
	scanned := len(candidates)
	if o.rules {
		rules := e.SemanticRules(ctx, query, 0)
		snippets = append(snippets, rules...)
		scanned += len(rules)
	}

	snippets = Dedupe(snippets)
	SortByScore(snippets)
	if len(snippets) > e.limits.FinalResults {
		snippets = snippets[:e.limits.FinalResults]
	}

	e.log.WithField("candidates", len(candidates)).WithField("swapped", swapped).
		Debugf("context search returned %d snippets", len(snippets))
	return newResult(snippets, scanned, start), nil
}

func snippetFromCandidate(c vector.Candidate) MemorySnippet {
	s := MemorySnippet{
		Content: c.Content,
		Title:   untitledVector,
		Type:    c.Type,
		Score:   c.Score,
	}
	if s.Content == "" {
		s.Content = emptyContentMarker
	}
	if c.File != "" {
		s.Title = baseName(c.File)
	}
	if s.Type == "" {
		s.Type = TypeVector
	}
	return s
}

// baseName is filepath.Base for paths written on either platform.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 && i < len(p)-1 {
		return p[i+1:]
	}
	return filepath.Base(p)
}
