// Package history keeps a queryable record of code executions in SQLite,
// supplementing the append-only step log.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one execution history row.
type Record struct {
	ID          string    `json:"id"`
	SessionName string    `json:"session_name"`
	CodeSummary string    `json:"code_summary"`
	CodeLength  int       `json:"code_length"`
	OutputCount int       `json:"output_count"`
	HasError    bool      `json:"has_error"`
	TimedOut    bool      `json:"timed_out"`
	DurationMs  int64     `json:"duration_ms"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// Store handles execution history persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a history store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		session_name TEXT NOT NULL,
		code_summary TEXT NOT NULL,
		code_length INTEGER NOT NULL,
		output_count INTEGER NOT NULL,
		has_error INTEGER NOT NULL,
		timed_out INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		executed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_session ON executions(session_name);
	CREATE INDEX IF NOT EXISTS idx_executions_executed_at ON executions(executed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one execution row, assigning an id if needed.
func (s *Store) Record(rec *Record) error {
	if rec.ID == "" {
		rec.ID = "exec_" + uuid.New().String()[:8]
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO executions (id, session_name, code_summary, code_length, output_count,
		                        has_error, timed_out, duration_ms, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionName, rec.CodeSummary, rec.CodeLength, rec.OutputCount,
		rec.HasError, rec.TimedOut, rec.DurationMs, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// List returns recent executions, newest first, optionally filtered by
// session name. limit <= 0 means a default of 50.
func (s *Store) List(sessionName string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_name, code_summary, code_length, output_count,
		       has_error, timed_out, duration_ms, executed_at
		FROM executions`
	args := []any{}
	if sessionName != "" {
		query += " WHERE session_name = ?"
		args = append(args, sessionName)
	}
	query += " ORDER BY executed_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.SessionName, &rec.CodeSummary, &rec.CodeLength,
			&rec.OutputCount, &rec.HasError, &rec.TimedOut, &rec.DurationMs, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PruneOlderThan deletes rows executed before cutoff and returns the count.
func (s *Store) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM executions WHERE executed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	return res.RowsAffected()
}
