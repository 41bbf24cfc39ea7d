package recall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchResult_Validate(t *testing.T) {
	ok := newResult([]MemorySnippet{{Title: "a"}}, 0, time.Now())
	require.NoError(t, ok.Validate())
	assert.Equal(t, 1, ok.ScannedCount, "scanned never drops below the snippet count")
	assert.NotNil(t, newResult(nil, 0, time.Now()).Snippets)

	bad := &SearchResult{Snippets: []MemorySnippet{{}, {}}, ScannedCount: 1}
	assert.Error(t, bad.Validate())
	assert.Error(t, (&SearchResult{ScannedCount: -1}).Validate())
	assert.Error(t, (&SearchResult{Elapsed: -time.Second}).Validate())
}

func TestSearchResult_DegradeAccumulates(t *testing.T) {
	r := newResult(nil, 0, time.Now())
	r.degrade("one")
	r.degrade("two")
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "one; two", r.Reason)
}

func TestMerge_KeepsBestPerTitle(t *testing.T) {
	got := Merge(
		[]MemorySnippet{{Title: "a", Score: 1}, {Title: "b", Score: 3}},
		[]MemorySnippet{{Title: "a", Score: 5, Type: TypeRule}, {Title: "c", Score: 3}},
	)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, TypeRule, got[0].Type)
	assert.Equal(t, []string{"b", "c"}, []string{got[1].Title, got[2].Title})
}

func TestBoost(t *testing.T) {
	intent, err := NewIntent("debug my script", "script", "CODE", "Unknown")
	require.NoError(t, err)
	tokens := BoostTokens(intent)
	assert.Equal(t, []string{"script", "code"}, tokens)

	snippets := []MemorySnippet{
		{Title: "agent_code_handler.py", Score: 1.0},
		{Title: "readme.md", Score: 1.0},
		{Title: "script_code_runner.py", Score: 2.0},
	}
	Boost(snippets, tokens, 0.5)
	assert.InDelta(t, 1.5, snippets[0].Score, 1e-9)
	assert.Equal(t, 1.0, snippets[1].Score)
	assert.InDelta(t, 4.0, snippets[2].Score, 1e-9)
}

func TestBoost_NeverLowersScores(t *testing.T) {
	titles := []string{"code", "x", "CODE_debug", "plan_code_code"}
	for _, factor := range []float64{0, 0.25, 0.5, 2} {
		snippets := make([]MemorySnippet, len(titles))
		for i, title := range titles {
			snippets[i] = MemorySnippet{Title: title, Score: float64(i) + 0.5}
		}
		Boost(snippets, []string{"code", "debug"}, factor)
		for i := range snippets {
			assert.GreaterOrEqual(t, snippets[i].Score, float64(i)+0.5)
		}
	}
}

func TestBoostTokens_DropsSentinels(t *testing.T) {
	intent := &Intent{Prompt: "hi", Subject: SubjectGeneral, Action: ActionUnknown, Category: CategoryGreet}
	assert.Equal(t, []string{"greet"}, BoostTokens(intent))
	assert.Nil(t, BoostTokens(nil))
}

func TestParseLabels(t *testing.T) {
	assert.Equal(t, SubjectSecondMind, ParseSubject(" secondmind "))
	assert.Equal(t, SubjectUnknown, ParseSubject("weather"))
	assert.Equal(t, ActionDebug, ParseAction("débug"))
	assert.Equal(t, CategoryConfigure, ParseCategory("CONFIGURE"))
	assert.Equal(t, CategoryUnknown, ParseCategory(""))

	_, err := NewIntent("  ", "Script", "Code", "Test")
	assert.Error(t, err)
}
