// Package audit provides SQLite-based persistence of tool invocations:
// which tool ran, how it ended, and how long it took.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/RobinCoderZhao/play-console-mcp/internal/tools"
	_ "modernc.org/sqlite"
)

// Schema is the SQLite schema for the invocation log.
const Schema = `
CREATE TABLE IF NOT EXISTS invocations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    tool        TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    detail      TEXT,
    duration_ms INTEGER NOT NULL,
    created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invocations_tool ON invocations(tool);
CREATE INDEX IF NOT EXISTS idx_invocations_created ON invocations(created_at);
`

// Log records dispatch outcomes to SQLite.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the log at the given path and initializes the schema.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps concurrent dispatch recording from blocking reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Log{db: db, logger: slog.Default()}, nil
}

// Record implements tools.Recorder. A failed insert is logged and dropped;
// auditing never fails a dispatch.
func (l *Log) Record(ctx context.Context, inv tools.Invocation) {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO invocations (tool, outcome, detail, duration_ms) VALUES (?, ?, ?, ?)`,
		inv.Tool, inv.Outcome, inv.Detail, inv.Duration.Milliseconds(),
	)
	if err != nil {
		l.logger.Warn("audit record failed", "tool", inv.Tool, "error", err)
	}
}

// Entry is one persisted invocation.
type Entry struct {
	ID         int64
	Tool       string
	Outcome    string
	Detail     string
	DurationMs int64
	CreatedAt  time.Time
}

// Recent returns the newest invocations, most recent first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, tool, outcome, COALESCE(detail, ''), duration_ms, created_at
		 FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Tool, &e.Outcome, &e.Detail, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

var _ tools.Recorder = (*Log)(nil)
