// Package vector is the boundary to the external semantic-similarity
// engine. The engine returns loosely-typed metadata maps; Adapter decodes
// them once, here, into Candidate values so nothing downstream touches raw
// maps.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/hurttlocker/recall/internal/logging"
)

// ErrEngineUnavailable is returned when no engine was configured. Callers
// treat it as a fatal precondition.
var ErrEngineUnavailable = errors.New("vector engine unavailable")

// RawHit is one engine result before decoding.
type RawHit struct {
	Metadata json.RawMessage `json:"metadata"`
	Score    float64         `json:"score"`
}

// Engine performs a similarity query.
type Engine interface {
	Query(ctx context.Context, text string, topK int) ([]RawHit, error)
}

// Candidate is a decoded engine result.
type Candidate struct {
	File      string
	Content   string
	Type      string
	SessionID string
	Turn      string // raw text, compared exactly
	Trigger   string
	Rule      string
	Score     float64
}

// Adapter queries an optional Engine and decodes its results.
type Adapter struct {
	engine Engine
	log    *log.Entry
}

// NewAdapter wraps engine. A nil engine yields an adapter whose queries
// fail with ErrEngineUnavailable.
func NewAdapter(engine Engine, logger *log.Entry) *Adapter {
	return &Adapter{engine: engine, log: logging.OrDefault(logger, "vector")}
}

// Available reports whether an engine is configured.
func (a *Adapter) Available() bool {
	return a != nil && a.engine != nil
}

// Query returns up to topK decoded candidates in engine order.
func (a *Adapter) Query(ctx context.Context, text string, topK int) ([]Candidate, error) {
	if !a.Available() {
		return nil, ErrEngineUnavailable
	}
	hits, err := a.engine.Query(ctx, text, topK)
	if err != nil {
		return nil, fmt.Errorf("querying vector engine: %w", err)
	}
	if len(hits) > topK && topK > 0 {
		hits = hits[:topK]
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if len(h.Metadata) > 0 && !gjson.ValidBytes(h.Metadata) {
			a.log.Warn("dropping vector hit with malformed metadata")
			continue
		}
		out = append(out, Decode(h.Metadata, h.Score))
	}
	return out, nil
}

// Candidate field spellings, most specific first. Engines that wrap the
// payload put it under "meta" or "metadata".
var (
	fileKeys    = []string{"fichier", "file", "path", "source"}
	contentKeys = []string{"contenu", "content", "text", "texte"}
	typeKeys    = []string{"type", "memory_type"}
	sessionKeys = []string{"session_id", "session"}
	turnKeys    = []string{"message_turn", "turn"}
	triggerKeys = []string{"declencheur", "trigger"}
	ruleKeys    = []string{"regle", "rule"}
	wrappers    = []string{"", "meta.", "metadata."}
)

// Decode turns raw engine metadata into a Candidate.
func Decode(metadata json.RawMessage, score float64) Candidate {
	root := gjson.ParseBytes(metadata)
	return Candidate{
		File:      lookup(root, fileKeys),
		Content:   lookup(root, contentKeys),
		Type:      lookup(root, typeKeys),
		SessionID: lookup(root, sessionKeys),
		Turn:      lookup(root, turnKeys),
		Trigger:   lookup(root, triggerKeys),
		Rule:      lookup(root, ruleKeys),
		Score:     score,
	}
}

func lookup(root gjson.Result, keys []string) string {
	for _, w := range wrappers {
		for _, k := range keys {
			r := root.Get(w + k)
			if !r.Exists() || r.Type == gjson.Null {
				continue
			}
			if s := r.String(); s != "" {
				return s
			}
		}
	}
	return ""
}
