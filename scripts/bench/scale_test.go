// scale_test.go: scale and latency testing over a synthetic memory tree.
// Run: go test ./scripts/bench/ -run TestScale -v -timeout 10m
//
// Generates interaction logs and their consolidated summaries at 1K and 10K
// turns, rebuilds the index, then measures keyword search, the verbatim
// funnel, recent history and stats.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/recall/internal/maintain"
	"github.com/hurttlocker/recall/internal/recall"
	"github.com/hurttlocker/recall/internal/store"
)

// ScaleTier defines a test tier.
type ScaleTier struct {
	Name  string `json:"name"`
	Turns int    `json:"turns"`
}

// ScaleResult stores benchmark results for a tier.
type ScaleResult struct {
	Tier            string  `json:"tier"`
	Turns           int     `json:"turns"`
	Documents       int64   `json:"documents"`
	DBSizeBytes     int64   `json:"db_size_bytes"`
	RebuildMs       float64 `json:"rebuild_ms"`
	RebuildPerSec   float64 `json:"rebuild_per_sec"`
	SearchP50       float64 `json:"search_p50_ms"`
	SearchP99       float64 `json:"search_p99_ms"`
	VerbatimP50     float64 `json:"verbatim_p50_ms"`
	VerbatimP99     float64 `json:"verbatim_p99_ms"`
	HistoryMs       float64 `json:"history_ms"`
	StatsMs         float64 `json:"stats_ms"`
	VerbatimMatches int     `json:"verbatim_matches"`
}

var tiers = []ScaleTier{
	{"small", 1000},
	{"medium", 10000},
}

// Subjects with a skewed distribution: few appear often, most rarely.
var topics = []string{
	"wedding", "venue", "Positano", "backup", "scheduler", "config",
	"pipeline", "GPU", "embedding", "index", "locator", "watcher",
	"journal", "budget", "travel", "invoice", "cron", "release",
}

var labels = []struct{ subject, action, category string }{
	{"SecondMind", "Think", "Plan"},
	{"Setup", "Do", "Configure"},
	{"Script", "Code", "Test"},
	{"File", "Do", "Document"},
	{"General", "Speak", "Ask"},
}

var templates = []string{
	"Updated the %s settings after the last restart. ",
	"The %s step failed twice before the retry succeeded. ",
	"We agreed to keep %s on the local disk for now. ",
	"Remember that %s must be checked before Friday. ",
	"Noted: the %s numbers look better than last week. ",
}

// anchor is planted in a few raw logs so the verbatim funnel has work.
const anchor = "Villa Rosa, in Positano!"

func generateTurn(rng *rand.Rand, session string, turn int) (raw, summary map[string]any) {
	idx := int(float64(len(topics)) * rng.Float64() * rng.Float64())
	topic := topics[idx]

	response := ""
	target := 100 + rng.Intn(900)
	for len(response) < target {
		response += fmt.Sprintf(templates[rng.Intn(len(templates))], topics[rng.Intn(len(topics))])
	}
	if rng.Intn(200) == 0 {
		response += anchor
	}

	l := labels[rng.Intn(len(labels))]
	meta := map[string]any{"session_id": session, "message_turn": turn}
	raw = map[string]any{
		"prompt":    "what about the " + topic + "?",
		"reponse":   response,
		"timestamp": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(turn) * time.Minute).Format(time.RFC3339),
		"classification": map[string]any{
			"sujet": l.subject, "action": l.action, "categorie": l.category,
			"tags": []string{topic},
		},
		"meta": meta,
	}
	summary = map[string]any{
		"resume": fmt.Sprintf("Turn %d of %s was about the %s.", turn, session, topic),
		"meta":   meta,
	}
	return raw, summary
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func benchmarkAtScale(t *testing.T, tier ScaleTier) ScaleResult {
	t.Helper()

	root := t.TempDir()
	history := filepath.Join(root, "history")
	persistent := filepath.Join(root, "persistent")
	require.NoError(t, os.MkdirAll(history, 0o755))
	require.NoError(t, os.MkdirAll(persistent, 0o755))

	rng := rand.New(rand.NewSource(42)) // deterministic for reproducibility
	for i := 0; i < tier.Turns; i++ {
		session := fmt.Sprintf("S%04d", i/20)
		raw, summary := generateTurn(rng, session, i%20+1)
		writeJSONFile(t, filepath.Join(history, fmt.Sprintf("interaction_%06d.json", i)), raw)
		writeJSONFile(t, filepath.Join(persistent, fmt.Sprintf("GENERAL_%s_%02d.json", session, i%20+1)), summary)
	}

	s, err := store.NewStore(store.StoreConfig{Dir: filepath.Join(root, "index")})
	require.NoError(t, err, "[%s] creating store", tier.Name)
	defer s.Close()
	ctx := context.Background()

	result := ScaleResult{Tier: tier.Name, Turns: tier.Turns}

	// --- REBUILD ---
	m := maintain.New(maintain.Options{Store: s, Roots: map[string]string{
		maintain.TypeHistory:    history,
		maintain.TypePersistent: persistent,
	}})
	rebuildStart := time.Now()
	res, err := m.Rebuild(ctx)
	require.NoError(t, err, "[%s] rebuild", tier.Name)
	rebuildDuration := time.Since(rebuildStart)
	result.RebuildMs = float64(rebuildDuration.Milliseconds())
	result.RebuildPerSec = float64(res.Indexed) / rebuildDuration.Seconds()
	t.Logf("[%s] Rebuild: %d files in %.1fs (%.0f/sec)", tier.Name, res.Indexed, rebuildDuration.Seconds(), result.RebuildPerSec)

	// --- KEYWORD SEARCH ---
	queries := []string{"wedding venue", "backup scheduler", "GPU embedding", "cron release", "travel budget"}
	var searchTimes []float64
	for i := 0; i < 50; i++ {
		start := time.Now()
		_, err := s.Search(ctx, queries[i%len(queries)], store.DefaultFields, 20)
		require.NoError(t, err)
		searchTimes = append(searchTimes, elapsedMs(start))
	}
	result.SearchP50, result.SearchP99 = percentiles(searchTimes)
	t.Logf("[%s] Search: P50=%.1fms P99=%.1fms", tier.Name, result.SearchP50, result.SearchP99)

	// --- VERBATIM FUNNEL ---
	engine := recall.New(recall.Options{
		Store: s,
		Paths: recall.Paths{History: history, Persistent: persistent},
	})
	var verbatimTimes []float64
	for i := 0; i < 20; i++ {
		start := time.Now()
		vr, err := engine.Verbatim(ctx, anchor)
		require.NoError(t, err)
		verbatimTimes = append(verbatimTimes, elapsedMs(start))
		result.VerbatimMatches = len(vr.Snippets)
	}
	result.VerbatimP50, result.VerbatimP99 = percentiles(verbatimTimes)
	t.Logf("[%s] Verbatim: P50=%.1fms P99=%.1fms (%d proven)", tier.Name, result.VerbatimP50, result.VerbatimP99, result.VerbatimMatches)

	// --- HISTORY ---
	historyStart := time.Now()
	for i := 0; i < 10; i++ {
		_, err := engine.History(ctx, 5)
		require.NoError(t, err)
	}
	result.HistoryMs = elapsedMs(historyStart) / 10.0
	t.Logf("[%s] History: %.1fms avg", tier.Name, result.HistoryMs)

	// --- STATS ---
	statsStart := time.Now()
	for i := 0; i < 10; i++ {
		st := engine.IndexStats(ctx)
		result.Documents = st.DocumentsIndexed
		result.DBSizeBytes = st.DBSizeBytes
	}
	result.StatsMs = elapsedMs(statsStart) / 10.0
	t.Logf("[%s] Stats: %.1fms avg, %d documents, %.1f MB", tier.Name, result.StatsMs, result.Documents, float64(result.DBSizeBytes)/(1024*1024))

	return result
}

func TestScale(t *testing.T) {
	if testing.Short() {
		t.Skip("scale benchmark skipped in short mode")
	}

	var results []ScaleResult
	for _, tier := range tiers {
		t.Run(tier.Name, func(t *testing.T) {
			results = append(results, benchmarkAtScale(t, tier))
		})
	}

	report := map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"platform":     runtime.GOOS + "/" + runtime.GOARCH,
		"go_version":   runtime.Version(),
		"tiers":        results,
	}
	if out := os.Getenv("RECALL_BENCH_OUT"); out != "" {
		jsonBytes, _ := json.MarshalIndent(report, "", "  ")
		if err := os.WriteFile(out, jsonBytes, 0o644); err != nil {
			t.Logf("writing report: %v", err)
		} else {
			t.Logf("Scale report written to %s", out)
		}
	}

	t.Log("\n=== SCALE BENCHMARK SUMMARY ===")
	t.Log("Tier       | Turns  | Rebuild/sec | Search P99 | Verbatim P99 | History | DB Size")
	t.Log("-----------|--------|-------------|------------|--------------|---------|--------")
	for _, r := range results {
		t.Logf("%-10s | %6d | %11.0f | %8.1fms | %10.1fms | %5.1fms | %.1f MB",
			r.Tier, r.Turns, r.RebuildPerSec, r.SearchP99, r.VerbatimP99, r.HistoryMs,
			float64(r.DBSizeBytes)/(1024*1024))
	}

	// Performance gates
	for _, r := range results {
		if r.Tier != "medium" {
			continue
		}
		if r.SearchP99 > 200 {
			t.Errorf("[%s] search P99 too high: %.1fms (target: <200ms)", r.Tier, r.SearchP99)
		}
		if r.VerbatimP99 > 500 {
			t.Errorf("[%s] verbatim P99 too high: %.1fms (target: <500ms)", r.Tier, r.VerbatimP99)
		}
		if r.Documents != int64(2*r.Turns) {
			t.Errorf("[%s] indexed %d documents, want %d", r.Tier, r.Documents, 2*r.Turns)
		}
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func percentiles(samples []float64) (p50, p99 float64) {
	sort.Float64s(samples)
	return samples[len(samples)/2], samples[int(float64(len(samples))*0.99)]
}
