package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// StateDB wraps a SQLite database for tool-usage persistence.
// Thread-safe for concurrent use from multiple goroutines within one
// process. Multiple OS processes can safely read/write via WAL mode +
// busy timeout.
type StateDB struct {
	db *sql.DB
}

// UsageRow is a persisted completed tool call.
type UsageRow struct {
	ID            int64
	SessionID     string
	ToolName      string
	Input         string
	ResultPreview string
	Success       bool
	DurationMs    int64
	CreatedAt     time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and
// busy timeout, and runs migrations.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: concurrent readers while writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Wait up to 5s if another process holds a lock.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	s := &StateDB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

func (s *StateDB) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tool_usage (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id     TEXT NOT NULL DEFAULT '',
			tool_name      TEXT NOT NULL,
			input          TEXT NOT NULL DEFAULT '',
			result_preview TEXT NOT NULL DEFAULT '',
			success        INTEGER NOT NULL DEFAULT 0,
			duration_ms    INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create tool_usage: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tool_usage_session
		ON tool_usage(session_id, created_at)
	`); err != nil {
		return fmt.Errorf("statedb: create usage index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statedb: commit migrate: %w", err)
	}
	return nil
}

// InsertUsage writes one completed tool call.
func (s *StateDB) InsertUsage(row UsageRow) error {
	createdAt := row.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	success := 0
	if row.Success {
		success = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO tool_usage (session_id, tool_name, input, result_preview, success, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.SessionID, row.ToolName, row.Input, row.ResultPreview, success, row.DurationMs, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("statedb: insert usage: %w", err)
	}
	return nil
}

// RecentUsage returns the most recent rows, newest first.
func (s *StateDB) RecentUsage(limit int) ([]UsageRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, tool_name, input, result_preview, success, duration_ms, created_at
		FROM tool_usage ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("statedb: query usage: %w", err)
	}
	defer rows.Close()

	var out []UsageRow
	for rows.Next() {
		var row UsageRow
		var success int
		var createdMs int64
		if err := rows.Scan(&row.ID, &row.SessionID, &row.ToolName, &row.Input,
			&row.ResultPreview, &success, &row.DurationMs, &createdMs); err != nil {
			return nil, fmt.Errorf("statedb: scan usage: %w", err)
		}
		row.Success = success != 0
		row.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, row)
	}
	return out, rows.Err()
}
