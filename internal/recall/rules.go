package recall

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hurttlocker/recall/internal/locate"
	"github.com/hurttlocker/recall/internal/record"
)

// Rules loads the governance rules whose file name contains tag. Explicitly
// tagged rules are always returned regardless of semantic relevance.
func (e *Engine) Rules(ctx context.Context, tag string) ([]MemorySnippet, error) {
	if e.paths.Rules == "" {
		return nil, fmt.Errorf("%w: rules", ErrPathNotConfigured)
	}
	if e.locator == nil {
		return nil, nil
	}

	q := locate.ScopedQuery(e.paths.Rules, "*"+strings.TrimSpace(tag)+"*.json")
	paths := e.locator.Locate(ctx, q, e.limits.LocatorMax)

	var rules []MemorySnippet
	for _, p := range paths {
		text, err := record.ReadFileSafe(p)
		if err != nil {
			e.log.WithError(err).Warnf("rule skipped, unreadable: %s", p)
			continue
		}
		rules = append(rules, MemorySnippet{
			Content: ruleText(text),
			Title:   strings.TrimSuffix(baseName(p), filepath.Ext(p)),
			Type:    TypeRule,
			Score:   10.0,
		})
	}
	return rules, nil
}

// ruleText returns the "regle" (or "rule") field of a JSON rule file, or
// the whole text when the file is not JSON or has no such field.
func ruleText(text string) string {
	if !gjson.Valid(text) {
		return text
	}
	root := gjson.Parse(text)
	for _, k := range []string{"regle", "rule"} {
		if v := root.Get(k); v.Exists() {
			return v.String()
		}
	}
	return text
}

// SemanticRules asks the rules engine for rules related to query. The rules
// engine is optional; without it, or on any engine failure, no rules are
// returned.
func (e *Engine) SemanticRules(ctx context.Context, query string, topK int) []MemorySnippet {
	if !e.rules.Available() {
		return nil
	}
	if topK <= 0 {
		topK = 3
	}
	cands, err := e.rules.Query(ctx, query, topK)
	if err != nil {
		e.log.WithError(err).Error("semantic rule lookup failed")
		return nil
	}

	out := make([]MemorySnippet, 0, len(cands))
	for _, c := range cands {
		content := c.Rule
		if content == "" {
			content = c.Content
		}
		if content == "" {
			content = "Règle vide"
		}
		trigger := c.Trigger
		if trigger == "" {
			trigger = "REGLE_SEMANTIQUE"
		}
		out = append(out, MemorySnippet{
			Content: content,
			Title:   fmt.Sprintf("%s (Sim: %.2f)", trigger, c.Score),
			Type:    TypeSemanticRule,
			Score:   c.Score,
		})
	}
	return out
}
