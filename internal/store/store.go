// Package store provides a SQLite-backed run history. Every completed
// retrieval batch appends one row per query so operators can audit which
// documents were queried, with which strategy and mode, and what was
// answered. Indexes themselves are never persisted.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Run is a single answered query within a retrieval batch.
type Run struct {
	// BatchID groups the rows written for one orchestrator invocation.
	BatchID string `json:"batch_id"`
	// Document is the document reference the batch was built from.
	Document string `json:"document"`
	// Strategy is the chunking strategy used for the build phase.
	Strategy string `json:"strategy"`
	// Mode is the retrieval mode (standard_retrieval, hybrid_search, ...).
	Mode string `json:"mode"`
	// Query is the user question.
	Query string `json:"query"`
	// Response is the generated answer.
	Response string `json:"response"`
	// Documents is the number of fragments passed to the responder.
	Documents int `json:"documents"`
	// Duration is the wall-clock time of the whole batch.
	Duration time.Duration `json:"duration_ns"`
	// CreatedAt is when the row was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// RunStore persists and retrieves run history. Implementations must be safe
// for concurrent use.
type RunStore interface {
	// Record persists all runs of one batch atomically.
	Record(ctx context.Context, runs []Run) error
	// Recent returns the most recent n runs, newest first. An empty document
	// matches every document.
	Recent(ctx context.Context, document string, n int) ([]Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the run history database.
// It resolves to ~/.docqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id     TEXT    NOT NULL,
    document     TEXT    NOT NULL,
    strategy     TEXT    NOT NULL,
    mode         TEXT    NOT NULL,
    query        TEXT    NOT NULL,
    response     TEXT    NOT NULL,
    documents    INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_runs_document_created
    ON runs (document, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists runs in a single transaction.
func (s *SQLiteStore) Record(ctx context.Context, runs []Run) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: record: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO runs (batch_id, document, strategy, mode, query, response, documents, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: record: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range runs {
		if _, err := stmt.ExecContext(ctx, r.BatchID, r.Document, r.Strategy, r.Mode, r.Query, r.Response,
			r.Documents, r.Duration.Milliseconds(), now); err != nil {
			return fmt.Errorf("store: record: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: record: commit: %w", err)
	}
	return nil
}

// Recent returns the most recent n runs, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, document string, n int) ([]Run, error) {
	const q = `
SELECT batch_id, document, strategy, mode, query, response, documents, duration_ms, created_at
FROM   runs
WHERE  (? = '' OR document = ?)
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, document, document, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			durationMS int64
			ts         int64
		)
		if err := rows.Scan(&r.BatchID, &r.Document, &r.Strategy, &r.Mode, &r.Query, &r.Response,
			&r.Documents, &durationMS, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.Unix(ts, 0)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
