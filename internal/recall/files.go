package recall

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hurttlocker/recall/internal/locate"
	"github.com/hurttlocker/recall/internal/record"
	"github.com/hurttlocker/recall/internal/textnorm"
)

// TechDocDir is the technical documentation folder inside the knowledge
// root.
const TechDocDir = "documentation_technique"

// Readmes returns the README_<key>.md files of the knowledge root whose
// key words all appear in prompt.
func (e *Engine) Readmes(ctx context.Context, prompt string) ([]MemorySnippet, error) {
	if e.paths.Knowledge == "" {
		return nil, fmt.Errorf("%w: knowledge", ErrPathNotConfigured)
	}
	if e.locator == nil {
		return nil, nil
	}

	paths := e.locator.Locate(ctx, locate.ScopedQuery(e.paths.Knowledge, "README_*.md"), e.limits.LocatorMax)
	if len(paths) == 0 {
		e.log.Warnf("no README found in %s", e.paths.Knowledge)
		return nil, nil
	}

	promptTokens := textnorm.Tokens(prompt)
	var out []MemorySnippet
	for _, p := range paths {
		name := baseName(p)
		if !textnorm.Subset(textnorm.ReadmeKeyTokens(name), promptTokens) {
			continue
		}
		text, err := record.ReadFileSafe(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, name, err)
		}
		out = append(out, MemorySnippet{Content: text, Title: name, Type: TypeReadme, Score: 5.0})
	}
	return out, nil
}

// TechDocs returns the technical manuals whose name contains pattern.
// Binary files are skipped; any other read failure is an error.
func (e *Engine) TechDocs(ctx context.Context, pattern string) ([]MemorySnippet, error) {
	if e.paths.Knowledge == "" {
		return nil, fmt.Errorf("%w: knowledge", ErrPathNotConfigured)
	}
	dir := filepath.Join(e.paths.Knowledge, TechDocDir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s does not exist", ErrPathNotConfigured, dir)
	}
	if e.locator == nil {
		return nil, nil
	}

	paths := e.locator.Locate(ctx, locate.ScopedQuery(dir, "*"+strings.TrimSpace(pattern)+"*"), e.limits.LocatorMax)
	var out []MemorySnippet
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, baseName(p), err)
		}
		if !utf8.Valid(data) {
			e.log.Warnf("binary file skipped: %s", p)
			continue
		}
		out = append(out, MemorySnippet{Content: string(data), Title: baseName(p), Type: TypeTechDoc, Score: 10.0})
	}
	return out, nil
}

// projectLocatorFilter narrows locator output before the stricter checks
// in projectFileType.
const projectLocatorFilter = "(ext:py|ext:yaml|path:.github) !path:logs !path:backups !path:__pycache__ !.env"

// projectFileType classifies a project path, returning "" for anything the
// assistant may not read: backups, logs, caches, env files, manual copies,
// and everything that is not Python, YAML or CI configuration.
func projectFileType(path string) string {
	name := strings.ToLower(baseName(path))
	lower := strings.ToLower(path)

	switch {
	case strings.Contains(lower, "backup"), strings.Contains(lower, "logs"):
		return ""
	case strings.Contains(lower, "__pycache__"), strings.Contains(name, ".env"):
		return ""
	case strings.Contains(name, " - copie"), strings.HasSuffix(name, ".bak"), strings.Contains(name, "_backup"):
		return ""
	}

	switch {
	case strings.HasSuffix(name, ".py"):
		return TypePythonFile
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"), strings.Contains(lower, ".github"):
		return TypeProjectConfig
	}
	return ""
}

// ProjectFiles lets the assistant read its own source and configuration
// files matching pattern inside the project root.
func (e *Engine) ProjectFiles(ctx context.Context, pattern string) (*SearchResult, error) {
	start := time.Now()
	if e.paths.Project == "" {
		return nil, fmt.Errorf("%w: project", ErrPathNotConfigured)
	}
	if e.locator == nil {
		return newResult(nil, 0, start), nil
	}

	q := locate.ScopedQuery(e.paths.Project, strings.TrimSpace(pattern)+" "+projectLocatorFilter)
	paths := e.locator.Locate(ctx, q, e.limits.LocatorMax)

	var out []MemorySnippet
	unreadable := 0
	for _, p := range paths {
		typ := projectFileType(p)
		if typ == "" {
			continue
		}
		text, err := record.ReadFileSafe(p)
		if err != nil {
			if !errors.Is(err, record.ErrMissingFile) {
				unreadable++
			}
			e.log.WithError(err).Warnf("project file unreadable: %s", baseName(p))
			continue
		}
		out = append(out, MemorySnippet{Content: text, Title: baseName(p), Type: typ, Score: 10.0})
	}

	res := newResult(out, len(paths), start)
	if unreadable > 0 {
		res.degrade(fmt.Sprintf("%d project file(s) unreadable", unreadable))
	}
	return res, nil
}

// LocatePhysical returns absolute paths inside the project root matching
// pattern, minus tool and dependency directories.
func (e *Engine) LocatePhysical(ctx context.Context, pattern string) ([]string, error) {
	if e.paths.Project == "" {
		return nil, fmt.Errorf("%w: project", ErrPathNotConfigured)
	}
	if e.locator == nil {
		return nil, nil
	}

	clean := strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "").Replace(pattern))
	q := locate.Terms(locate.PathFilter(e.paths.Project), clean)
	valid := locate.FilterWithin(e.paths.Project, e.locator.Locate(ctx, q, e.limits.LocatorMax))
	if len(valid) == 0 {
		e.log.Warnf("no physical file found for %q", clean)
	}
	return valid, nil
}
