package recall

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Fatal retrieval errors. Callers check them with errors.Is.
var (
	// ErrPathNotConfigured means a memory root the operation needs is unset.
	ErrPathNotConfigured = errors.New("memory path not configured")
	// ErrUnreadable means a file the operation must read could not be read
	// for a reason other than its encoding.
	ErrUnreadable = errors.New("file unreadable")
)

// Snippet types.
const (
	TypeVector        = "vectoriel"
	TypeConsolidated  = "resume_consolide"
	TypeSummary       = "resume"
	TypeRawHistory    = "historique_brut"
	TypeVerbatim      = "verbatim_prouve"
	TypeRule          = "regle"
	TypeSemanticRule  = "regle_vectorielle"
	TypeReadme        = "readme"
	TypeTechDoc       = "doc_technique"
	TypePythonFile    = "fichier_python"
	TypeProjectConfig = "config_projet"
)

// MemorySnippet is the unit every retrieval path produces. Only Score
// changes after construction.
type MemorySnippet struct {
	Content string  `json:"content"`
	Title   string  `json:"title"`
	Type    string  `json:"type"`
	Score   float64 `json:"score"`
}

// Status tells a caller whether a result is complete.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// SearchResult is the envelope returned by every retrieval operation.
type SearchResult struct {
	Snippets     []MemorySnippet `json:"snippets"`
	ScannedCount int             `json:"scanned_count"`
	Elapsed      time.Duration   `json:"elapsed"`
	Status       Status          `json:"status"`
	Reason       string          `json:"reason,omitempty"`
}

// Validate checks the envelope invariants.
func (r *SearchResult) Validate() error {
	if r.ScannedCount < 0 {
		return fmt.Errorf("scanned count cannot be negative: %d", r.ScannedCount)
	}
	if r.Elapsed < 0 {
		return fmt.Errorf("elapsed time cannot be negative: %s", r.Elapsed)
	}
	if r.ScannedCount < len(r.Snippets) {
		return fmt.Errorf("scanned count %d is below snippet count %d", r.ScannedCount, len(r.Snippets))
	}
	return nil
}

// degrade marks r partial. Reasons accumulate.
func (r *SearchResult) degrade(reason string) {
	r.Status = StatusDegraded
	if r.Reason == "" {
		r.Reason = reason
	} else {
		r.Reason += "; " + reason
	}
}

func newResult(snippets []MemorySnippet, scanned int, start time.Time) *SearchResult {
	if snippets == nil {
		snippets = []MemorySnippet{}
	}
	if scanned < len(snippets) {
		scanned = len(snippets)
	}
	return &SearchResult{
		Snippets:     snippets,
		ScannedCount: scanned,
		Elapsed:      time.Since(start),
		Status:       StatusOK,
	}
}

// SortByScore orders snippets by descending score. Equal scores keep their
// relative order.
func SortByScore(snippets []MemorySnippet) {
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
}

// Merge combines snippet lists, keeping the highest-scoring snippet per
// title, and returns them sorted by descending score.
func Merge(lists ...[]MemorySnippet) []MemorySnippet {
	var all []MemorySnippet
	for _, list := range lists {
		all = append(all, list...)
	}
	out := Dedupe(all)
	SortByScore(out)
	return out
}

// Dedupe collapses snippets sharing an identity into the highest-scoring
// one, at the position of the first occurrence. The identity is the title,
// or the content for untitled vector memories.
func Dedupe(snippets []MemorySnippet) []MemorySnippet {
	index := map[string]int{}
	var out []MemorySnippet
	for _, s := range snippets {
		key := s.Title
		if key == untitledVector {
			key += "\x00" + s.Content
		}
		if i, ok := index[key]; ok {
			if s.Score > out[i].Score {
				out[i] = s
			}
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}
	return out
}
