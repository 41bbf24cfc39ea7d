// Package store provides the SQLite + FTS5 inverted index over the
// assistant's memory files.
//
// The index lives in a single database file inside the index directory.
// Each memory file is one document keyed by its absolute path; the FTS5
// table mirrors the content and filename columns through triggers.
//
// Readers never block: the database runs in WAL mode and every query sees
// a consistent snapshot. Writers are serialized in-process by a weight-1
// semaphore, so at most one UpdateDocument or Rebuild runs at a time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	_ "modernc.org/sqlite"

	"github.com/hurttlocker/recall/internal/logging"
)

// IndexFile is the database file name inside the index directory.
const IndexFile = "index.db"

// DefaultIndexDir is the default index location.
const DefaultIndexDir = "~/.recall/index"

// Document is one indexed memory file.
type Document struct {
	Path        string
	Filename    string
	Content     string
	MemoryType  string
	Timestamp   time.Time
	SubjectTag  string
	ActionTag   string
	CategoryTag string
	SessionID   string
	TurnNumber  int
}

// Hit is a search result with its relevance score. Higher is better.
type Hit struct {
	Document
	Score float64
}

// Stats holds observability statistics about the index.
type Stats struct {
	DocumentCount int64
	DBSizeBytes   int64
	PerType       map[string]int64
	IndexPath     string
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	// Dir is the index directory. ":memory:" opens a private in-memory
	// database for tests.
	Dir    string
	Logger *log.Entry
}

// Store defines the index operations the retrieval layer depends on.
type Store interface {
	// Writes
	UpdateDocument(ctx context.Context, doc *Document) error
	Rebuild(ctx context.Context, roots []Root, opts RebuildOptions) (*RebuildResult, error)

	// Reads
	Search(ctx context.Context, query string, fields []string, limit int) ([]*Hit, error)
	SearchWithin(ctx context.Context, query string, fields []string, limit int, pathPrefix string) ([]*Hit, error)
	FindBySession(ctx context.Context, sessionID, pathPrefix string, limit int) ([]*Document, error)
	Get(ctx context.Context, path string) (*Document, error)
	Count(ctx context.Context) (int64, error)

	// Observability
	Stats(ctx context.Context) (*Stats, error)
	Path() string

	Close() error
}

// SQLiteStore implements Store using SQLite + FTS5.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	writer *semaphore.Weighted
	log    *log.Entry
}

// NewStore opens (creating if needed) the index in cfg.Dir and ensures its
// schema.
func NewStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultIndexDir
	}

	dbPath := ":memory:"
	if cfg.Dir != ":memory:" {
		dir := expandPath(cfg.Dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		dbPath = filepath.Join(dir, IndexFile)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		writer: semaphore.NewWeighted(1),
		log:    logging.OrDefault(cfg.Logger, "store"),
	}

	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	return s, nil
}

// Exists reports whether an index database is present in dir.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(expandPath(dir), IndexFile))
	return err == nil && !info.IsDir()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// lockWriter blocks until the single writer slot is free or ctx ends.
func (s *SQLiteStore) lockWriter(ctx context.Context) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for index writer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) unlockWriter() {
	s.writer.Release(1)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
