package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is recorded in the meta table.
const SchemaVersion = "1"

// EnsureSchema creates the index tables if they don't exist and seeds
// metadata. It is idempotent and safe to run on every open.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			path         TEXT UNIQUE NOT NULL,
			filename     TEXT NOT NULL,
			content      TEXT NOT NULL,
			memory_type  TEXT NOT NULL DEFAULT '',
			timestamp    DATETIME NOT NULL,
			subject_tag  TEXT NOT NULL DEFAULT '',
			action_tag   TEXT NOT NULL DEFAULT '',
			category_tag TEXT NOT NULL DEFAULT '',
			session_id   TEXT NOT NULL DEFAULT '',
			turn_number  INTEGER NOT NULL DEFAULT 0,
			indexed_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Word-boundary split, case folded, accents kept, no stemming and
		// no stop words. '_' is a token character so snake_case
		// identifiers stay whole.
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			content,
			filename,
			content=documents,
			content_rowid=id,
			tokenize="unicode61 remove_diacritics 0 tokenchars '_'"
		)`,

		`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, content, filename)
			VALUES (new.id, new.content, new.filename);
		END`,

		`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content, filename)
			VALUES ('delete', old.id, old.content, old.filename);
		END`,

		`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content, filename)
			VALUES ('delete', old.id, old.content, old.filename);
			INSERT INTO documents_fts(rowid, content, filename)
			VALUES (new.id, new.content, new.filename);
		END`,

		`CREATE INDEX IF NOT EXISTS idx_documents_memory_type ON documents(memory_type)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, turn_number)`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w\nStatement: %s", err, truncate(stmt, 100))
		}
	}

	if err := seedMeta(ctx, tx); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	return tx.Commit()
}

// seedMeta initializes the meta table with defaults if not already set.
func seedMeta(ctx context.Context, tx *sql.Tx) error {
	defaults := map[string]string{
		"schema_version": SchemaVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// setMeta records a key in the meta table.
func setMeta(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, key, value string) error {
	_, err := exec.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// Meta returns a value from the meta table, or "" when unset.
func (s *SQLiteStore) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading meta %q: %w", key, err)
	}
	return value, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
