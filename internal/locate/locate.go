// Package locate wraps an external filename-index tool (a "locator") that
// answers filename and path-pattern queries with one path per line.
//
// The tool is invoked as:
//
//	<exe> -n <limit> <terms...>
//
// Locate never fails: a broken or slow tool degrades to zero results and a
// log line. Only Probe, used at startup, reports a missing tool as an error.
package locate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hurttlocker/recall/internal/logging"
)

// ErrLocatorNotFound is returned by Probe when no usable locator executable
// exists. Callers treat it as a fatal configuration error.
var ErrLocatorNotFound = errors.New("locator executable not found")

// ProbeTimeout bounds each candidate's `-h` check.
const ProbeTimeout = 2 * time.Second

// Locator answers filename queries.
type Locator interface {
	// Locate returns up to limit absolute paths matching q, or nil when the
	// tool fails.
	Locate(ctx context.Context, q Query, limit int) []string
}

// Everything runs a locator executable as a child process.
type Everything struct {
	Exe    string
	Logger *log.Entry
}

// New returns an Everything locator for exe.
func New(exe string, logger *log.Entry) *Everything {
	return &Everything{Exe: exe, Logger: logging.OrDefault(logger, "locate")}
}

// Locate implements Locator.
func (e *Everything) Locate(ctx context.Context, q Query, limit int) []string {
	logger := logging.OrDefault(e.Logger, "locate")
	tokens := q.Tokens()
	if len(tokens) == 0 || limit <= 0 {
		return nil
	}

	args := BuildArgs(limit, tokens)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Exe, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		logger.WithField("query", q.String()).Warnf("locator stderr: %s", msg)
	}
	if err != nil {
		logger.WithError(err).WithField("args", args).Error("locator failed")
		return nil
	}

	paths := ParseOutput(stdout.String())
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths
}

// Probe resolves the locator executable. A configured path is accepted when
// it exists on disk; otherwise each candidate is tried in order and the
// first that answers `-h` within ProbeTimeout wins.
func Probe(ctx context.Context, configured string, candidates []string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		exe, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		if answers(ctx, exe) {
			return exe, nil
		}
	}
	if configured != "" {
		return "", fmt.Errorf("%w: %s", ErrLocatorNotFound, configured)
	}
	return "", ErrLocatorNotFound
}

func answers(ctx context.Context, exe string) bool {
	pctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	err := exec.CommandContext(pctx, exe, "-h").Run()
	if pctx.Err() != nil {
		return false
	}
	if err == nil {
		return true
	}
	// Some builds exit non-zero on -h but still ran.
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// excludedDirs are never returned by physical lookups.
var excludedDirs = map[string]bool{
	".git":          true,
	"venv":          true,
	"__pycache__":   true,
	"node_modules":  true,
	"site-packages": true,
}

// PathFilter renders the locator's path restriction for root. The root is
// quoted only when it contains a space; the locator treats quotes
// literally otherwise.
func PathFilter(root string) string {
	root = filepath.Clean(root)
	if strings.Contains(root, " ") {
		return fmt.Sprintf(`path:"%s"`, root)
	}
	return "path:" + root
}

// ScopedQuery restricts a command-line style pattern to root.
func ScopedQuery(root, pattern string) Query {
	return Raw(PathFilter(root) + " " + pattern)
}

// Excluded reports whether any directory component of path is one of the
// excluded tool and dependency directories.
func Excluded(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if excludedDirs[part] {
			return true
		}
	}
	return false
}

// Within reports whether path lies inside root.
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// FilterWithin drops excluded paths and paths outside root, keeping order.
func FilterWithin(root string, paths []string) []string {
	var out []string
	for _, p := range paths {
		if Excluded(p) || !Within(root, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}
