package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewStore(StoreConfig{Dir: t.TempDir()})
	require.NoError(t, err, "creating test store")
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestNewStore_SchemaIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir))

	s1, err := NewStore(StoreConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s1.UpdateDocument(context.Background(), &Document{Path: "/m/a.md", Content: "alpha"}))
	require.NoError(t, s1.Close())

	assert.True(t, Exists(dir))

	s2, err := NewStore(StoreConfig{Dir: dir})
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.EnsureSchema(context.Background()))

	n, err := s2.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	v, err := s2.Meta(context.Background(), "schema_version")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestNewStore_InMemory(t *testing.T) {
	s, err := NewStore(StoreConfig{Dir: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpdateDocument(context.Background(), &Document{Path: "/x.md", Content: "x"}))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpdateDocument_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc := &Document{Path: "/mem/history/interaction_1.json", Content: "old body mentions zebra", MemoryType: "history"}
	require.NoError(t, s.UpdateDocument(ctx, doc))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: doc.Path, Content: "new body mentions giraffe", MemoryType: "history"}))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: doc.Path, Content: "new body mentions giraffe", MemoryType: "history"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Get(ctx, doc.Path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new body mentions giraffe", got.Content)
	assert.Equal(t, "interaction_1.json", got.Filename)

	hits, err := s.Search(ctx, "zebra", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "stale FTS row must be replaced")

	hits, err = s.Search(ctx, "giraffe", nil, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestUpdateDocument_RejectsEmptyPath(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.UpdateDocument(context.Background(), &Document{Content: "x"}))
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "/nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearch_ShortAndCommonTermsAreKept(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/a.txt", Content: "The AI is on"}))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/b.txt", Content: "nothing here"}))

	for _, q := range []string{"ai", "the", "is", "ON"} {
		hits, err := s.Search(ctx, q, nil, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1, "query %q", q)
		assert.Equal(t, "/m/a.txt", hits[0].Path)
	}
}

func TestSearch_ORGroupRanksBestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/one.txt", Content: "golang channels"}))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/two.txt", Content: "golang channels and goroutines together"}))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/three.txt", Content: "python"}))

	hits, err := s.Search(ctx, "goroutines golang", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "/m/two.txt", hits[0].Path)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = s.Search(ctx, "golang", nil, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "limit caps the page")
}

func TestSearch_PhraseAndFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/final.txt", Content: "this is the final answer"}))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/answer_final.txt", Content: "answer first, final later"}))

	hits, err := s.Search(ctx, `"final answer"`, []string{FieldContent}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/m/final.txt", hits[0].Path)

	hits, err = s.Search(ctx, "answer_final", []string{FieldFilename}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/m/answer_final.txt", hits[0].Path)

	_, err = s.Search(ctx, "x", []string{"bogus"}, 10)
	assert.Error(t, err)

	hits, err = s.Search(ctx, `  "" `, nil, 10)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestSearch_OperatorsAreLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/m/a.txt", Content: "near and not or"}))

	hits, err := s.Search(ctx, "NOT NEAR( AND * OR", nil, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchWithin_PathPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/mem/persistent/s1.json", Content: "session S1"}))
	require.NoError(t, s.UpdateDocument(ctx, &Document{Path: "/mem/history/s1.json", Content: "session S1"}))

	hits, err := s.SearchWithin(ctx, "s1", nil, 10, "/mem/persistent/")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/mem/persistent/s1.json", hits[0].Path)
}

func TestFindBySession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i, p := range []string{"/mem/persistent/a.json", "/mem/persistent/b.json", "/mem/history/c.json"} {
		require.NoError(t, s.UpdateDocument(ctx, &Document{Path: p, Content: "x", SessionID: "S1", TurnNumber: i + 1}))
	}

	docs, err := s.FindBySession(ctx, "S1", "/mem/persistent/", 5)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/mem/persistent/b.json", docs[0].Path, "newest turn first")

	docs, err = s.FindBySession(ctx, "", "", 5)
	require.NoError(t, err)
	assert.Nil(t, docs)
}

func TestBuildMatch(t *testing.T) {
	got, err := BuildMatch(`Hello "Final  Answer" hello`, nil)
	require.NoError(t, err)
	assert.Equal(t, `"final answer" OR "hello"`, got)

	got, err = BuildMatch("x", []string{"content"})
	require.NoError(t, err)
	assert.Equal(t, `{content} : "x"`, got)

	got, err = BuildMatch("x", []string{"filename", "content"})
	require.NoError(t, err)
	assert.Equal(t, `"x"`, got)
}

func seedMemoryTree(t *testing.T) (string, []Root) {
	t.Helper()
	root := t.TempDir()
	hist := filepath.Join(root, "history")
	pers := filepath.Join(root, "persistent")

	writeFile(t, filepath.Join(hist, "interaction_1.json"),
		`{"id": "x1", "prompt": "deploy the service", "reponse": "use the pipeline",
		  "meta": {"session_id": "S1", "message_turn": 1},
		  "classification": {"sujet": "Setup", "action": "Do", "categorie": "Configure"}}`)
	writeFile(t, filepath.Join(hist, "interaction_2.json"), `{"prompt": `)
	writeFile(t, filepath.Join(hist, "empty.txt"), "   ")
	writeFile(t, filepath.Join(hist, "backup", "interaction_0.json"), `{"prompt": "old backup"}`)
	writeFile(t, filepath.Join(hist, "image.png"), "binary")
	writeFile(t, filepath.Join(pers, "notes.md"), "# Notes\nremember the pipeline")
	writeFile(t, filepath.Join(pers, "log.jsonl"), "{\"prompt\": \"line one\"}\n{\"prompt\": \"line two\"}\n")

	return root, []Root{
		{MemoryType: "history", Path: hist},
		{MemoryType: "persistent", Path: pers},
		{MemoryType: "knowledge", Path: filepath.Join(root, "missing")},
	}
}

func TestRebuild_IndexesSupportedFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, roots := seedMemoryTree(t)

	var progress []int
	res, err := s.Rebuild(ctx, roots, RebuildOptions{
		ProgressEvery: 2,
		ProgressFn:    func(n int, _ string) { progress = append(progress, n) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 1, res.Skipped, "malformed JSON is skipped, not fatal")
	assert.Equal(t, 1, res.Empty)
	assert.Equal(t, map[string]int{"history": 1, "persistent": 2}, res.PerType)
	assert.Equal(t, []int{2}, progress)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasSuffix(res.Errors[0].Path, "interaction_2.json"))

	hits, err := s.Search(ctx, "pipeline", nil, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Search(ctx, "backup", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "excluded directories are never indexed")

	doc, err := s.Get(ctx, filepath.Join(roots[0].Path, "interaction_1.json"))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "history", doc.MemoryType)
	assert.Equal(t, "Setup", doc.SubjectTag)
	assert.Equal(t, "Do", doc.ActionTag)
	assert.Equal(t, "Configure", doc.CategoryTag)
	assert.Equal(t, "S1", doc.SessionID)
	assert.Equal(t, 1, doc.TurnNumber)
	assert.NotContains(t, doc.Content, "x1")

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.DocumentCount)
	assert.EqualValues(t, 2, stats.PerType["persistent"])
	assert.Greater(t, stats.DBSizeBytes, int64(0))
}

func TestRebuild_IsRepeatableAndPrunes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, roots := seedMemoryTree(t)

	_, err := s.Rebuild(ctx, roots, RebuildOptions{})
	require.NoError(t, err)
	_, err = s.Rebuild(ctx, roots, RebuildOptions{})
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n, "rebuild upserts by path")

	require.NoError(t, os.Remove(filepath.Join(roots[1].Path, "notes.md")))
	res, err := s.Rebuild(ctx, roots, RebuildOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRebuild_CancelledRollsBack(t *testing.T) {
	s := newTestStore(t)
	_, roots := seedMemoryTree(t)
	require.NoError(t, s.UpdateDocument(context.Background(), &Document{Path: "/keep.md", Content: "keep"}))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := s.Rebuild(ctx, roots, RebuildOptions{
		ProgressEvery: 1,
		ProgressFn: func(int, string) {
			calls++
			cancel()
		},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "no partial batch is visible")
}

func TestWriter_WaitHonoursContext(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.lockWriter(context.Background()))
	defer s.unlockWriter()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.UpdateDocument(ctx, &Document{Path: "/x.md", Content: "x"})
	assert.Error(t, err)
}

func TestRebuild_ConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	root := t.TempDir()
	for i := 0; i < 400; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("interaction_%03d.json", i)),
			fmt.Sprintf(`{"prompt": "question %d about the harbour", "reponse": "answer %d"}`, i, i))
	}
	roots := []Root{{MemoryType: "history", Path: root}}

	var g errgroup.Group
	g.Go(func() error {
		res, err := s.Rebuild(ctx, roots, RebuildOptions{})
		if err != nil {
			return err
		}
		if res.Indexed != 400 {
			return fmt.Errorf("indexed %d files, want 400", res.Indexed)
		}
		return nil
	})
	for w := 0; w < 4; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				if _, err := s.Search(ctx, "harbour", nil, 10); err != nil {
					return fmt.Errorf("search during rebuild: %w", err)
				}
				doc := &Document{
					Path:       fmt.Sprintf("/live/writer_%d/note_%02d.md", w, i),
					Content:    "written while rebuilding",
					MemoryType: "persistent",
				}
				if err := s.UpdateDocument(ctx, doc); err != nil {
					return fmt.Errorf("update during rebuild: %w", err)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 500, n)
	for w := 0; w < 4; w++ {
		for i := 0; i < 25; i++ {
			doc, err := s.Get(ctx, fmt.Sprintf("/live/writer_%d/note_%02d.md", w, i))
			require.NoError(t, err)
			assert.NotNil(t, doc)
		}
	}

	hits, err := s.Search(ctx, "harbour", nil, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 10)
}
