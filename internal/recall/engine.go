// Package recall fuses the retrieval back ends into ranked memory
// snippets for the assistant's prompt builder.
//
// Engine fans a request out to the vector adapter, the inverted index and
// the file locator, swaps raw history fragments for their consolidated
// summaries, re-ranks by detected intent and returns a SearchResult.
package recall

import (
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/hurttlocker/recall/internal/locate"
	"github.com/hurttlocker/recall/internal/logging"
	"github.com/hurttlocker/recall/internal/store"
	"github.com/hurttlocker/recall/internal/vector"
)

// Paths are the memory roots on disk. Empty means not configured.
type Paths struct {
	Reflexive       string
	History         string
	Persistent      string
	Knowledge       string
	TrainingModules string
	Rules           string
	Project         string
	IndexDir        string
}

// Limits bound every retrieval path.
type Limits struct {
	FinalResults      int
	VectorTopK        int
	LocatorMax        int
	HistoryRecent     int
	VerbatimOverfetch int
	SwapCandidates    int
	IntentBoost       float64
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		FinalResults:      10,
		VectorTopK:        15,
		LocatorMax:        20,
		HistoryRecent:     5,
		VerbatimOverfetch: 20,
		SwapCandidates:    5,
		IntentBoost:       0.5,
	}
}

func (l *Limits) normalize() {
	d := DefaultLimits()
	if l.FinalResults <= 0 {
		l.FinalResults = d.FinalResults
	}
	if l.VectorTopK <= 0 {
		l.VectorTopK = d.VectorTopK
	}
	if l.LocatorMax <= 0 {
		l.LocatorMax = d.LocatorMax
	}
	if l.HistoryRecent <= 0 {
		l.HistoryRecent = d.HistoryRecent
	}
	if l.VerbatimOverfetch <= 0 {
		l.VerbatimOverfetch = d.VerbatimOverfetch
	}
	if l.SwapCandidates <= 0 {
		l.SwapCandidates = d.SwapCandidates
	}
	if l.IntentBoost < 0 {
		l.IntentBoost = d.IntentBoost
	}
}

// DefaultSwapCacheTTL keeps resolved summaries briefly so repeated
// candidates from one conversation don't re-read the same files.
const DefaultSwapCacheTTL = 2 * time.Minute

// Options wires an Engine. Every collaborator is injected.
type Options struct {
	Store   store.Store
	Vector  *vector.Adapter
	Rules   *vector.Adapter
	Locator locate.Locator
	Paths   Paths
	Limits  Limits

	// LocatorAvailable is reported by IndexStats.
	LocatorAvailable bool
	SwapCacheTTL     time.Duration
	Logger           *log.Entry
}

// Engine runs retrieval requests. It is safe for concurrent use.
type Engine struct {
	store     store.Store
	vector    *vector.Adapter
	rules     *vector.Adapter
	locator   locate.Locator
	paths     Paths
	limits    Limits
	locatorOK bool
	swaps     *cache.Cache
	log       *log.Entry
}

// New builds an Engine from opts.
func New(opts Options) *Engine {
	opts.Limits.normalize()
	ttl := opts.SwapCacheTTL
	if ttl <= 0 {
		ttl = DefaultSwapCacheTTL
	}
	return &Engine{
		store:     opts.Store,
		vector:    opts.Vector,
		rules:     opts.Rules,
		locator:   opts.Locator,
		paths:     opts.Paths,
		limits:    opts.Limits,
		locatorOK: opts.LocatorAvailable,
		swaps:     cache.New(ttl, 2*ttl),
		log:       logging.OrDefault(opts.Logger, "recall"),
	}
}

// Limits returns the effective limits.
func (e *Engine) Limits() Limits {
	return e.limits
}
