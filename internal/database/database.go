package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps a SQLite database connection holding one session's feedback.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// OpenMemory creates a fresh in-memory database. Its contents live exactly
// as long as the returned DB.
func OpenMemory() (*DB, error) {
	return Open(MemoryPath)
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database, so the pool is
	// pinned to one connection that is never recycled. This also serializes
	// all statements against the store.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if dbPath != MemoryPath {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting journal mode: %w", err)
		}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath, now: time.Now}, nil
}

// Close closes the database connection, discarding in-memory contents.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database path.
func (db *DB) Path() string {
	return db.path
}

// SetClock replaces the timestamp source used by Submit.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}
