package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

const excerptLen = 100

// csvHeader is the column order of CSV exports.
var csvHeader = []string{"timestamp", "subject", "action", "category", "tags", "prompt_excerpt", "response_excerpt"}

// ExportResult describes a written export.
type ExportResult struct {
	ID    string `json:"export_id"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

type exportDoc struct {
	ID           string    `json:"export_id"`
	ExportedAt   time.Time `json:"exported_at"`
	Total        int       `json:"total_interactions"`
	Interactions []Entry   `json:"interactions"`
}

// Export writes every classified interaction to the export directory as
// export_semantique_<YYYYmmdd_HHMMSS>.json or .csv.
func (a *Analyzer) Export(ctx context.Context, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("unsupported export format %q (want json or csv)", format)
	}
	if a.exportDir == "" {
		return nil, errors.New("export path not configured")
	}

	entries, err := a.Search(ctx, Filter{Limit: ExportLimit})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(a.exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}

	now := a.now()
	res := &ExportResult{
		ID:    uuid.NewString(),
		Path:  filepath.Join(a.exportDir, "export_semantique_"+now.Format("20060102_150405")+"."+format),
		Count: len(entries),
	}

	f, err := os.Create(res.Path)
	if err != nil {
		return nil, fmt.Errorf("creating export: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatJSON:
		if entries == nil {
			entries = []Entry{}
		}
		enc := json.NewEncoder(f)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		err = enc.Encode(exportDoc{ID: res.ID, ExportedAt: now, Total: len(entries), Interactions: entries})
	case FormatCSV:
		err = writeCSV(f, entries)
	}
	if err != nil {
		return nil, fmt.Errorf("writing export: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing export: %w", err)
	}

	a.log.WithField("export_id", res.ID).Infof("export written: %s", res.Path)
	return res, nil
}

func writeCSV(f *os.File, entries []Entry) error {
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		c := e.Classification
		row := []string{
			e.Timestamp,
			c.Subject,
			c.Action,
			c.Category,
			strings.Join(c.Tags, ";"),
			truncate(e.Prompt, excerptLen),
			truncate(e.Response, excerptLen),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
