package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	db1.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}
