package recall

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/recall/internal/locate"
	"github.com/hurttlocker/recall/internal/store"
	"github.com/hurttlocker/recall/internal/vector"
)

type fakeEngine struct {
	hits []vector.RawHit
	err  error
}

func (f *fakeEngine) Query(_ context.Context, _ string, topK int) ([]vector.RawHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func hit(t *testing.T, meta map[string]any, score float64) vector.RawHit {
	t.Helper()
	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	return vector.RawHit{Metadata: raw, Score: score}
}

// fakeLocator returns canned paths and records the queries it saw.
type fakeLocator struct {
	paths   []string
	queries []locate.Query
}

func (f *fakeLocator) Locate(_ context.Context, q locate.Query, limit int) []string {
	f.queries = append(f.queries, q)
	if len(f.paths) > limit {
		return f.paths[:limit]
	}
	return f.paths
}

type fixture struct {
	root  string
	paths Paths
	store *store.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root: root,
		paths: Paths{
			History:    filepath.Join(root, "history"),
			Persistent: filepath.Join(root, "persistent"),
			Knowledge:  filepath.Join(root, "knowledge"),
			Rules:      filepath.Join(root, "rules"),
			Project:    filepath.Join(root, "project"),
		},
	}
	for _, d := range []string{f.paths.History, f.paths.Persistent, f.paths.Knowledge, f.paths.Rules, f.paths.Project} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	s, err := store.NewStore(store.StoreConfig{Dir: filepath.Join(root, "index")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	f.store = s
	return f
}

func (f *fixture) write(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// writeAt writes body and sets its modification time.
func (f *fixture) writeAt(t *testing.T, path, body string, mtime time.Time) string {
	t.Helper()
	f.write(t, path, body)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	_, err := f.store.Rebuild(context.Background(), []store.Root{
		{MemoryType: "history", Path: f.paths.History},
		{MemoryType: "persistent", Path: f.paths.Persistent},
	}, store.RebuildOptions{})
	require.NoError(t, err)
}

func (f *fixture) engine(eng vector.Engine, loc locate.Locator) *Engine {
	opts := Options{
		Store:   f.store,
		Locator: loc,
		Paths:   f.paths,
		Limits:  DefaultLimits(),
	}
	if eng != nil {
		opts.Vector = vector.NewAdapter(eng, nil)
	}
	return New(opts)
}
