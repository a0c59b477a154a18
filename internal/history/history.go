// Package history provides an optional SQLite ledger of completed relocations.
//
// The ledger is append-only and is never consulted to decide whether a file
// should be relocated: duplicate suppression stays in memory.
//
// Architecture:
//   - Database file: configurable, e.g. ~/.config/dlwatch/history.db
//   - WAL mode: `dlwatch history` can read while the daemon writes
//   - Schema: relocations table, indexed by time and source name
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/steveyegge/dlwatch/internal/relocate"
)

// timeFormat has fixed width so relocated_at sorts correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one completed relocation.
type Entry struct {
	ID          int64
	Source      string
	Target      string
	Size        int64
	Trigger     string
	RelocatedAt time.Time
}

// DB wraps the SQLite connection holding the relocation ledger.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist, it is created. Call InitSchema before the
// first write. The caller MUST call Close() when done.
//
// Example:
//
//	db, err := history.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One writer; the ledger sees at most a few writes per second.
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn: conn,
		path: path,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS relocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		cause TEXT NOT NULL,
		relocated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relocations_at ON relocations(relocated_at);
	CREATE INDEX IF NOT EXISTS idx_relocations_source ON relocations(source);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Record appends an entry and returns its ID.
func (db *DB) Record(ctx context.Context, e Entry) (int64, error) {
	if e.Source == "" || e.Target == "" {
		return 0, fmt.Errorf("source and target are required")
	}
	if e.RelocatedAt.IsZero() {
		e.RelocatedAt = time.Now()
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO relocations (source, target, size, cause, relocated_at)
	VALUES (?, ?, ?, ?, ?)
	`,
		e.Source,
		e.Target,
		e.Size,
		e.Trigger,
		e.RelocatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert relocation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get relocation id: %w", err)
	}
	return id, nil
}

// RecordRelocation implements relocate.Recorder.
func (db *DB) RecordRelocation(ctx context.Context, res relocate.Result) error {
	_, err := db.Record(ctx, Entry{
		Source:      res.Path,
		Target:      res.Target,
		Size:        res.Bytes,
		Trigger:     string(res.Trigger),
		RelocatedAt: res.At,
	})
	return err
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (db *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return db.RecentSince(ctx, time.Time{}, limit)
}

// RecentSince is Recent restricted to entries relocated at or after since.
// A zero since applies no bound.
func (db *DB) RecentSince(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	query := `
	SELECT id, source, target, size, cause, relocated_at
	FROM relocations
	`
	var args []any
	if !since.IsZero() {
		query += " WHERE relocated_at >= ?"
		args = append(args, since.UTC().Format(timeFormat))
	}
	query += " ORDER BY relocated_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relocations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &e.Size, &e.Trigger, &at); err != nil {
			return nil, fmt.Errorf("failed to scan relocation: %w", err)
		}
		e.RelocatedAt, err = time.Parse(timeFormat, at)
		if err != nil {
			return nil, fmt.Errorf("failed to parse relocated_at %q: %w", at, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relocations: %w", err)
	}

	return entries, nil
}

// Count returns the number of recorded relocations.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM relocations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count relocations: %w", err)
	}
	return count, nil
}
