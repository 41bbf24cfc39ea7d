package recall

import "context"

// IndexStats describes the index and locator for health checks.
type IndexStats struct {
	DocumentsIndexed int64            `json:"documents_indexed"`
	PerType          map[string]int64 `json:"per_type,omitempty"`
	DBSizeBytes      int64            `json:"db_size_bytes"`
	LocatorAvailable bool             `json:"locator_available"`
	IndexPath        string           `json:"index_path"`
	Error            string           `json:"error,omitempty"`
}

// IndexStats never fails; an unreadable index is reported in Error.
func (e *Engine) IndexStats(ctx context.Context) *IndexStats {
	out := &IndexStats{LocatorAvailable: e.locatorOK}
	if e.store == nil {
		out.Error = "index not open"
		return out
	}
	out.IndexPath = e.store.Path()

	st, err := e.store.Stats(ctx)
	if err != nil {
		out.Error = "cannot read index: " + err.Error()
		return out
	}
	out.DocumentsIndexed = st.DocumentCount
	out.PerType = st.PerType
	out.DBSizeBytes = st.DBSizeBytes
	return out
}
