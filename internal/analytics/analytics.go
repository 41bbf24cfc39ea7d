// Package analytics queries the interaction history by classification
// rather than by content, for periodic reviews and external analysis.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hurttlocker/recall/internal/logging"
	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/textnorm"
)

// ErrNoInteractions is returned by Summarize when the period is empty.
var ErrNoInteractions = errors.New("no interaction found for the period")

// Defaults.
const (
	DefaultLimit       = 20
	SummaryLimit       = 1000
	ExportLimit        = 10000
	responsePreviewLen = 200
)

// Filter selects classified interactions. Zero fields match everything.
// Tags match when any of them is on the record, ignoring case.
type Filter struct {
	Subject  string
	Action   string
	Category string
	Tags     []string
	Since    time.Time
	Limit    int
}

// Entry is one classified interaction.
type Entry struct {
	File           string                `json:"file"`
	Timestamp      string                `json:"timestamp"`
	Prompt         string                `json:"prompt"`
	Response       string                `json:"response"`
	Classification record.Classification `json:"classification"`
	Metadata       map[string]any        `json:"metadata,omitempty"`
}

// Options configures an Analyzer.
type Options struct {
	HistoryDir string
	// ExportDir receives exports; empty disables Export.
	ExportDir string
	Logger    *log.Entry
}

// Analyzer reads classification data from the history root.
type Analyzer struct {
	historyDir string
	exportDir  string
	log        *log.Entry
	now        func() time.Time
}

// New returns an Analyzer.
func New(opts Options) *Analyzer {
	return &Analyzer{
		historyDir: opts.HistoryDir,
		exportDir:  opts.ExportDir,
		log:        logging.OrDefault(opts.Logger, "analytics"),
		now:        time.Now,
	}
}

// Search returns classified interactions matching f, newest first. A
// missing history root yields no entries; unreadable records are skipped.
func (a *Analyzer) Search(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if a.historyDir == "" {
		return nil, errors.New("history path not configured")
	}
	if _, err := os.Stat(a.historyDir); err != nil {
		a.log.Warnf("history folder not found: %s", a.historyDir)
		return nil, nil
	}

	var out []Entry
	err := filepath.WalkDir(a.historyDir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			a.log.WithError(err).Warnf("cannot read %s", path)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		in, err := record.Load(path)
		if err != nil {
			a.log.WithError(err).Warnf("record skipped: %s", path)
			return nil
		}
		if in.Classification == nil || !f.matches(in) {
			return nil
		}
		out = append(out, Entry{
			File:           path,
			Timestamp:      in.Timestamp,
			Prompt:         in.Prompt,
			Response:       preview(in.Response, responsePreviewLen),
			Classification: *in.Classification,
			Metadata:       in.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning history: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return newerFirst(out[i].Timestamp, out[j].Timestamp) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	a.log.Debugf("classification search: %d results", len(out))
	return out, nil
}

func (f Filter) matches(in *record.Interaction) bool {
	if !f.Since.IsZero() {
		ts, ok := ParseTimestamp(in.Timestamp)
		if !ok || ts.Before(f.Since) {
			return false
		}
	}
	c := in.Classification
	if !sameLabel(f.Subject, c.Subject) || !sameLabel(f.Action, c.Action) || !sameLabel(f.Category, c.Category) {
		return false
	}
	if len(f.Tags) == 0 {
		return true
	}
	have := map[string]bool{}
	for _, t := range c.Tags {
		have[strings.ToLower(t)] = true
	}
	for _, t := range f.Tags {
		if have[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}

func sameLabel(want, got string) bool {
	return want == "" || textnorm.Fold(want) == textnorm.Fold(got)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp reads the ISO-8601 forms found in interaction records.
// Timestamps without a zone are taken as local time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// newerFirst orders timestamps newest first. Unparseable values sort after
// parsed ones and compare as strings among themselves.
func newerFirst(a, b string) bool {
	ta, okA := ParseTimestamp(a)
	tb, okB := ParseTimestamp(b)
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA != okB:
		return okA
	default:
		return a > b
	}
}

// preview cuts s to n runes, marking the cut with an ellipsis.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
