package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "feedback and cause counts",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS feedback (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submitted_at TEXT NOT NULL,
    body TEXT NOT NULL,
    causes TEXT NOT NULL DEFAULT '[]'
);

-- id order is first-seen order and breaks count ties.
CREATE TABLE IF NOT EXISTS cause_counts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cause TEXT UNIQUE NOT NULL,
    count INTEGER NOT NULL DEFAULT 0
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
