package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	hits []RawHit
	err  error
	gotK int
}

func (f *fakeEngine) Query(_ context.Context, _ string, topK int) ([]RawHit, error) {
	f.gotK = topK
	return f.hits, f.err
}

func TestAdapter_NoEngine(t *testing.T) {
	a := NewAdapter(nil, nil)
	assert.False(t, a.Available())
	_, err := a.Query(context.Background(), "x", 5)
	assert.True(t, errors.Is(err, ErrEngineUnavailable))

	var nilAdapter *Adapter
	assert.False(t, nilAdapter.Available())
}

func TestAdapter_DecodesAndCaps(t *testing.T) {
	eng := &fakeEngine{hits: []RawHit{
		{Metadata: json.RawMessage(`{"fichier": "/m/historique/interaction_3.json", "contenu": "raw", "session_id": "S1", "message_turn": 3}`), Score: 0.9},
		{Metadata: json.RawMessage(`{"broken": `), Score: 0.8},
		{Metadata: json.RawMessage(`{"file": "/m/b.md", "content": "b"}`), Score: 0.7},
		{Metadata: json.RawMessage(`{"file": "/m/c.md"}`), Score: 0.6},
	}}
	a := NewAdapter(eng, nil)

	got, err := a.Query(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, eng.gotK)
	require.Len(t, got, 2, "malformed metadata is dropped, extra hits are cut")

	assert.Equal(t, "/m/historique/interaction_3.json", got[0].File)
	assert.Equal(t, "raw", got[0].Content)
	assert.Equal(t, "S1", got[0].SessionID)
	assert.Equal(t, "3", got[0].Turn)
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, "/m/b.md", got[1].File)
}

func TestAdapter_EngineError(t *testing.T) {
	a := NewAdapter(&fakeEngine{err: errors.New("boom")}, nil)
	_, err := a.Query(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDecode_Wrappers(t *testing.T) {
	c := Decode(json.RawMessage(`{"meta": {"session_id": "S2", "message_turn": "7"}, "metadata": {"path": "/p.json", "text": "hello"}}`), 1)
	assert.Equal(t, "S2", c.SessionID)
	assert.Equal(t, "7", c.Turn)
	assert.Equal(t, "/p.json", c.File)
	assert.Equal(t, "hello", c.Content)

	r := Decode(json.RawMessage(`{"declencheur": "when deploying", "regle": "run tests first"}`), 0.5)
	assert.Equal(t, "when deploying", r.Trigger)
	assert.Equal(t, "run tests first", r.Rule)

	empty := Decode(nil, 0)
	assert.Equal(t, Candidate{}, empty)
}

func TestHTTPEngine_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "final answer", req.Query)
		assert.Equal(t, 15, req.TopK)

		w.Write([]byte(`{"results": [{"metadata": {"fichier": "/a.json"}, "score": 0.42}]}`))
	}))
	defer srv.Close()

	eng, err := NewHTTPEngine(srv.URL, "k", 0)
	require.NoError(t, err)

	got, err := NewAdapter(eng, nil).Query(context.Background(), "final answer", 15)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/a.json", got[0].File)
	assert.Equal(t, 0.42, got[0].Score)
}

func TestHTTPEngine_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	eng, err := NewHTTPEngine(srv.URL, "", 0)
	require.NoError(t, err)
	_, err = eng.Query(context.Background(), "q", 1)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)

	_, err = NewHTTPEngine("", "", 0)
	assert.Error(t, err)
}
