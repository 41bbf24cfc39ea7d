package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/record"
)

// DefaultExtensions are the file types a rebuild indexes.
var DefaultExtensions = []string{".json", ".jsonl", ".txt", ".md"}

// DefaultExcludes are path fragments a rebuild never descends into.
var DefaultExcludes = []string{"backup", "trash", "archive", ".git"}

// DefaultProgressEvery is the default progress reporting interval.
const DefaultProgressEvery = 1000

// Root is one memory-type directory to index.
type Root struct {
	MemoryType string
	Path       string
}

// RebuildOptions configures Rebuild.
type RebuildOptions struct {
	Extensions    []string
	Excludes      []string
	ProgressEvery int
	ProgressFn    func(indexed int, path string)
	// Prune removes documents of the rebuilt types whose file was not seen.
	Prune bool
}

// Normalize fills unset options with their defaults.
func (o *RebuildOptions) Normalize() {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	if o.Excludes == nil {
		o.Excludes = DefaultExcludes
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
}

// FileError records a non-fatal per-file failure.
type FileError struct {
	Path    string
	Message string
}

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	Indexed int
	Skipped int
	Empty   int
	Pruned  int
	PerType map[string]int
	Errors  []FileError
	Elapsed time.Duration
}

// Rebuild re-indexes every supported file under roots in a single
// transaction. A file that cannot be read or parsed is skipped and
// reported; anything else (cancellation, a failed commit) rolls the whole
// batch back and the index is left exactly as it was.
func (s *SQLiteStore) Rebuild(ctx context.Context, roots []Root, opts RebuildOptions) (*RebuildResult, error) {
	opts.Normalize()
	start := time.Now()
	result := &RebuildResult{PerType: map[string]int{}}

	if err := s.lockWriter(ctx); err != nil {
		return nil, err
	}
	defer s.unlockWriter()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	seen := map[string]bool{}
	var walked []Root

	for _, root := range roots {
		info, err := os.Stat(root.Path)
		if err != nil || !info.IsDir() {
			s.log.WithField("memory_type", root.MemoryType).WithField("path", root.Path).
				Warn("memory root missing, skipped")
			continue
		}
		s.log.WithField("memory_type", root.MemoryType).Infof("indexing %s", root.Path)
		walked = append(walked, root)

		walkErr := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				result.Errors = append(result.Errors, FileError{Path: path, Message: err.Error()})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root.Path && excluded(root.Path, path, opts.Excludes) {
					return fs.SkipDir
				}
				return nil
			}
			if !hasExtension(path, opts.Extensions) || excluded(root.Path, path, opts.Excludes) {
				return nil
			}

			doc, err := DocumentFromFile(path, root.MemoryType)
			if err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, FileError{Path: path, Message: err.Error()})
				return nil
			}
			if strings.TrimSpace(doc.Content) == "" {
				result.Empty++
				return nil
			}
			if err := upsert(ctx, stmt, doc, now); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result.Skipped++
				result.Errors = append(result.Errors, FileError{Path: path, Message: err.Error()})
				return nil
			}

			seen[path] = true
			result.Indexed++
			result.PerType[root.MemoryType]++
			if result.Indexed%opts.ProgressEvery == 0 {
				s.log.Infof("%d files indexed", result.Indexed)
				if opts.ProgressFn != nil {
					opts.ProgressFn(result.Indexed, path)
				}
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("rebuilding %s: %w", root.MemoryType, walkErr)
		}
	}

	if opts.Prune {
		pruned, err := pruneUnseen(ctx, tx, walked, seen)
		if err != nil {
			return nil, err
		}
		result.Pruned = pruned
	}

	if err := setMeta(ctx, tx, "last_rebuild_at", now.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("recording rebuild time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rebuild: %w", err)
	}

	result.Elapsed = time.Since(start)
	s.log.WithField("indexed", result.Indexed).WithField("skipped", result.Skipped).
		Infof("rebuild complete in %s", result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// pruneUnseen deletes documents of the walked memory types whose path was
// not indexed in this pass. Types whose root was missing are left alone.
func pruneUnseen(ctx context.Context, tx *sql.Tx, roots []Root, seen map[string]bool) (int, error) {
	var stale []string
	for _, root := range roots {
		rows, err := tx.QueryContext(ctx, "SELECT path FROM documents WHERE memory_type = ?", root.MemoryType)
		if err != nil {
			return 0, fmt.Errorf("listing %s documents: %w", root.MemoryType, err)
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return 0, fmt.Errorf("scanning path: %w", err)
			}
			if !seen[p] {
				stale = append(stale, p)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return 0, err
		}
	}

	for _, p := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", p); err != nil {
			return 0, fmt.Errorf("pruning %s: %w", filepath.Base(p), err)
		}
	}
	return len(stale), nil
}

// DocumentFromFile extracts path into a Document of the given memory type,
// stamped with the file's modification time.
func DocumentFromFile(path, memoryType string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	ex, err := record.ExtractFile(path)
	if err != nil {
		return nil, err
	}
	return &Document{
		Path:        path,
		Filename:    filepath.Base(path),
		Content:     ex.Content,
		MemoryType:  memoryType,
		Timestamp:   info.ModTime().UTC(),
		SubjectTag:  ex.Subject,
		ActionTag:   ex.Action,
		CategoryTag: ex.Category,
		SessionID:   ex.SessionID,
		TurnNumber:  ex.Turn,
	}, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// excluded matches fragments against the path below root, case-insensitively,
// so a root that itself lives under e.g. ~/backup still indexes.
func excluded(root, path string, fragments []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = strings.ToLower(filepath.ToSlash(rel))
	for _, f := range fragments {
		if f != "" && strings.Contains(rel, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
