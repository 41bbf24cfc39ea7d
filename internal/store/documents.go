package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"
)

const upsertSQL = `INSERT INTO documents
	(path, filename, content, memory_type, timestamp, subject_tag, action_tag, category_tag, session_id, turn_number, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		filename     = excluded.filename,
		content      = excluded.content,
		memory_type  = excluded.memory_type,
		timestamp    = excluded.timestamp,
		subject_tag  = excluded.subject_tag,
		action_tag   = excluded.action_tag,
		category_tag = excluded.category_tag,
		session_id   = excluded.session_id,
		turn_number  = excluded.turn_number,
		indexed_at   = excluded.indexed_at`

const documentColumns = `d.path, d.filename, d.content, d.memory_type, d.timestamp,
	d.subject_tag, d.action_tag, d.category_tag, d.session_id, d.turn_number`

// UpdateDocument inserts doc or replaces the document with the same path,
// in one transaction under the writer lock. On failure nothing is written.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *Document) error {
	if doc == nil || doc.Path == "" {
		return fmt.Errorf("document path cannot be empty")
	}

	if err := s.lockWriter(ctx); err != nil {
		return err
	}
	defer s.unlockWriter()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	if err := upsert(ctx, stmt, doc, time.Now().UTC()); err != nil {
		s.log.WithError(err).WithField("path", doc.Path).Error("index update failed, rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		s.log.WithError(err).WithField("path", doc.Path).Error("index commit failed")
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, stmt *sql.Stmt, doc *Document, now time.Time) error {
	if doc.Filename == "" {
		doc.Filename = filepath.Base(doc.Path)
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = now
	}
	_, err := stmt.ExecContext(ctx,
		doc.Path, doc.Filename, doc.Content, doc.MemoryType, doc.Timestamp.UTC(),
		doc.SubjectTag, doc.ActionTag, doc.CategoryTag, doc.SessionID, doc.TurnNumber, now,
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", doc.Filename, err)
	}
	return nil
}

// Get retrieves a document by path. Returns nil if not found.
func (s *SQLiteStore) Get(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.path = ?`, path)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", path, err)
	}
	return doc, nil
}

// Count returns the number of indexed documents.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// FindBySession returns documents whose session column equals sessionID,
// restricted to pathPrefix when set, newest turn first.
func (s *SQLiteStore) FindBySession(ctx context.Context, sessionID, pathPrefix string, limit int) ([]*Document, error) {
	if sessionID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	query := `SELECT ` + documentColumns + ` FROM documents d WHERE d.session_id = ?`
	args := []any{sessionID}
	if pathPrefix != "" {
		query += " AND substr(d.path, 1, length(?)) = ?"
		args = append(args, pathPrefix, pathPrefix)
	}
	query += " ORDER BY d.turn_number DESC, d.path LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Stats returns document totals, per-type counts and the database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{PerType: map[string]int64{}, IndexPath: s.dbPath}

	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.DocumentCount = n

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_type, COUNT(*) FROM documents GROUP BY memory_type ORDER BY memory_type`)
	if err != nil {
		return nil, fmt.Errorf("querying per-type counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scanning per-type count: %w", err)
		}
		stats.PerType[typ] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Only meaningful for file-backed databases.
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	d := &Document{}
	err := r.Scan(&d.Path, &d.Filename, &d.Content, &d.MemoryType, &d.Timestamp,
		&d.SubjectTag, &d.ActionTag, &d.CategoryTag, &d.SessionID, &d.TurnNumber)
	if err != nil {
		return nil, err
	}
	return d, nil
}
