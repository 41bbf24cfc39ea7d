package recall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbatim_IsCaseAndPunctuationExact(t *testing.T) {
	f := newFixture(t)
	f.write(t, filepath.Join(f.paths.History, "interaction_1.json"),
		`{"prompt": "greet me", "reponse": "Hello, World! nice to meet you"}`)
	f.write(t, filepath.Join(f.paths.History, "interaction_2.json"),
		`{"prompt": "again", "reponse": "hello world, lower case"}`)
	f.rebuild(t)
	e := f.engine(&fakeEngine{}, nil)

	res, err := e.Verbatim(context.Background(), "Hello, World!")
	require.NoError(t, err)
	require.Len(t, res.Snippets, 1)
	assert.Equal(t, "interaction_1.json", res.Snippets[0].Title)
	assert.Equal(t, TypeVerbatim, res.Snippets[0].Type)
	assert.Equal(t, 10.0, res.Snippets[0].Score)
	assert.GreaterOrEqual(t, res.ScannedCount, 2, "both records match the lossy index query")

	res, err = e.Verbatim(context.Background(), "HELLO, WORLD!")
	require.NoError(t, err)
	assert.Empty(t, res.Snippets)

	res, err = e.Verbatim(context.Background(), "Hello World")
	require.NoError(t, err)
	assert.Empty(t, res.Snippets, "punctuation must match too")
}

func TestVerbatim_EmptyPhraseAndUnconfigured(t *testing.T) {
	f := newFixture(t)
	e := f.engine(&fakeEngine{}, nil)

	res, err := e.Verbatim(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, res.Snippets)
	assert.Equal(t, 0, res.ScannedCount)

	e.paths.History = ""
	_, err = e.Verbatim(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrPathNotConfigured))
}

func TestVerbatim_SkipsFilesGoneFromDisk(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, filepath.Join(f.paths.History, "interaction_1.json"), `{"reponse": "exact words here"}`)
	f.rebuild(t)
	require.NoError(t, os.Remove(path))

	res, err := f.engine(&fakeEngine{}, nil).Verbatim(context.Background(), "exact words")
	require.NoError(t, err)
	assert.Empty(t, res.Snippets)
	assert.Equal(t, StatusOK, res.Status)
}

func seedHistory(t *testing.T, f *fixture) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.writeAt(t, filepath.Join(f.paths.History, "interaction_1.json"),
		`{"prompt": "first question", "reponse": "first reply"}`, base)
	f.writeAt(t, filepath.Join(f.paths.History, "interaction_2.json"),
		`{"prompt": "second question", "reponse": "second reply"}`, base.Add(time.Minute))
	f.writeAt(t, filepath.Join(f.paths.History, "interaction_3.json"),
		`{"prompt": "third question", "reponse": "draft answer", "meta": {"session_id": "S1", "message_turn": 3}}`, base.Add(2*time.Minute))
	f.write(t, filepath.Join(f.paths.Persistent, "SCRIPT_CODE_answer.json"),
		`{"note": "consolidated from S1", "reponse": "final answer", "meta": {"session_id": "S1", "message_turn": 3}}`)
	f.rebuild(t)
}

func TestHistory_ChronologicalWithSummaries(t *testing.T) {
	f := newFixture(t)
	seedHistory(t, f)
	e := f.engine(&fakeEngine{}, nil)

	res, err := e.History(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, res.Validate())
	require.Len(t, res.Snippets, 2)
	assert.Equal(t, 3, res.ScannedCount)

	assert.Equal(t, "interaction_2.json", res.Snippets[0].Title)
	assert.Equal(t, TypeRawHistory, res.Snippets[0].Type)
	assert.Contains(t, res.Snippets[0].Content, "second reply")

	assert.Equal(t, "SCRIPT_CODE_answer.json", res.Snippets[1].Title)
	assert.Equal(t, TypeSummary, res.Snippets[1].Type)
	assert.Equal(t, "final answer", res.Snippets[1].Content)
}

func TestHistory_DefaultsAndDegraded(t *testing.T) {
	f := newFixture(t)
	seedHistory(t, f)
	f.writeAt(t, filepath.Join(f.paths.History, "interaction_9.json"), `{broken`, time.Now())
	e := f.engine(&fakeEngine{}, nil)

	res, err := e.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, res.Snippets, 3)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Reason, "1 history record(s) skipped")

	e.paths.History = filepath.Join(f.root, "nowhere")
	res, err = e.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Snippets)
}

func TestRecentExchanges(t *testing.T) {
	f := newFixture(t)
	seedHistory(t, f)
	e := f.engine(&fakeEngine{}, nil)

	got := e.RecentExchanges(context.Background(), 2)
	assert.Equal(t, []string{"second question", "second reply", "third question", "draft answer"}, got)

	assert.Len(t, e.RecentExchanges(context.Background(), 0), 6)

	e.paths.History = ""
	assert.Nil(t, e.RecentExchanges(context.Background(), 5))
}
