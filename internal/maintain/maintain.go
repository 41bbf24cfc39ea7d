// Package maintain keeps the index in step with the memory tree: full
// rebuilds over every memory-type root, single-file updates after an
// interaction completes, and a filesystem watcher that drives those updates.
package maintain

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hurttlocker/recall/internal/logging"
	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/store"
)

// Memory types, in rebuild order.
const (
	TypeReflexive       = "reflexive"
	TypeHistory         = "history"
	TypePersistent      = "persistent"
	TypeKnowledge       = "knowledge"
	TypeTrainingModules = "training_modules"
)

// RebuildOrder is the fixed order in which memory types are indexed.
var RebuildOrder = []string{TypeReflexive, TypeHistory, TypePersistent, TypeKnowledge, TypeTrainingModules}

// Options configures a Coordinator.
type Options struct {
	Store store.Store
	// Roots maps a memory type to its directory. Unset types are skipped.
	Roots         map[string]string
	ProgressEvery int
	// Prune drops documents whose file disappeared since the last rebuild.
	Prune  bool
	Logger *log.Entry
}

// Coordinator is the only component that drives index writes.
type Coordinator struct {
	store         store.Store
	roots         map[string]string
	progressEvery int
	prune         bool
	log           *log.Entry
}

// New returns a Coordinator over opts.Store.
func New(opts Options) *Coordinator {
	roots := make(map[string]string, len(opts.Roots))
	for k, v := range opts.Roots {
		if v = strings.TrimSpace(v); v != "" {
			roots[k] = filepath.Clean(v)
		}
	}
	return &Coordinator{
		store:         opts.Store,
		roots:         roots,
		progressEvery: opts.ProgressEvery,
		prune:         opts.Prune,
		log:           logging.OrDefault(opts.Logger, "maintain"),
	}
}

// Roots returns the configured roots in rebuild order.
func (c *Coordinator) Roots() []store.Root {
	var out []store.Root
	for _, t := range RebuildOrder {
		if p, ok := c.roots[t]; ok {
			out = append(out, store.Root{MemoryType: t, Path: p})
		}
	}
	return out
}

// Rebuild re-indexes every configured memory-type root. Unconfigured types
// are logged and skipped; missing directories are skipped by the store.
func (c *Coordinator) Rebuild(ctx context.Context) (*store.RebuildResult, error) {
	if c.store == nil {
		return nil, fmt.Errorf("rebuild: index not open")
	}
	for _, t := range RebuildOrder {
		if _, ok := c.roots[t]; !ok {
			c.log.WithField("memory_type", t).Warn("memory type not configured, skipped")
		}
	}

	res, err := c.store.Rebuild(ctx, c.Roots(), store.RebuildOptions{
		ProgressEvery: c.progressEvery,
		Prune:         c.prune,
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	for _, fe := range res.Errors {
		c.log.WithField("path", fe.Path).Warnf("file skipped: %s", fe.Message)
	}
	return res, nil
}

// Outcome reports a single-file update. Updates never fail loudly: the
// caller is finishing an interaction and must not be interrupted.
type Outcome struct {
	Path       string `json:"path"`
	MemoryType string `json:"memory_type"`
	Applied    bool   `json:"applied"`
	Reason     string `json:"reason,omitempty"`
}

// UpdateFile indexes path as memType. When content is empty the file is
// read and flattened; otherwise content is indexed as given and the file,
// if readable, only contributes its tags. A failed update leaves the index
// untouched.
func (c *Coordinator) UpdateFile(ctx context.Context, path, memType, content string) Outcome {
	out := Outcome{Path: path, MemoryType: memType}
	if c.store == nil {
		out.Reason = "index not open"
		return out
	}
	if memType == "" {
		memType = c.TypeOf(path)
		out.MemoryType = memType
	}

	doc, err := c.document(path, memType, content)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Error("index update failed")
		out.Reason = err.Error()
		return out
	}
	if strings.TrimSpace(doc.Content) == "" {
		out.Reason = "no indexable content"
		return out
	}

	if err := c.store.UpdateDocument(ctx, doc); err != nil {
		c.log.WithError(err).WithField("path", path).Error("index update failed")
		out.Reason = err.Error()
		return out
	}
	out.Applied = true
	c.log.WithField("path", path).Debug("index updated")
	return out
}

func (c *Coordinator) document(path, memType, content string) (*store.Document, error) {
	if content == "" {
		return store.DocumentFromFile(path, memType)
	}

	doc := &store.Document{
		Path:       path,
		Filename:   filepath.Base(path),
		Content:    content,
		MemoryType: memType,
		Timestamp:  time.Now().UTC(),
	}
	if ex, err := record.ExtractFile(path); err == nil {
		doc.SubjectTag, doc.ActionTag, doc.CategoryTag = ex.Subject, ex.Action, ex.Category
		doc.SessionID, doc.TurnNumber = ex.SessionID, ex.Turn
	} else if in, perr := record.Parse([]byte(content)); perr == nil {
		doc.SessionID, doc.TurnNumber = in.SessionID, in.TurnNumber()
		if cl := in.Classification; cl != nil {
			doc.SubjectTag, doc.ActionTag, doc.CategoryTag = cl.Subject, cl.Action, cl.Category
		}
	}
	return doc, nil
}

// TypeOf returns the memory type whose root contains path, or "" when no
// configured root does. The deepest root wins.
func (c *Coordinator) TypeOf(path string) string {
	best, bestLen := "", -1
	clean := filepath.Clean(path)
	for t, root := range c.roots {
		rel, err := filepath.Rel(root, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = t, len(root)
		}
	}
	return best
}
