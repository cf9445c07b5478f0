package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/datagate/internal/config"
)

func sqliteDSN(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "migrate.db")
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count == 1
}

func TestRunMigrations(t *testing.T) {
	dsn := sqliteDSN(t)

	require.NoError(t, Run(config.DriverSQLite, dsn))

	db, err := sql.Open(config.DriverSQLite, dsn)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "sessions", "password_reset_tokens", "subscriptions"} {
		require.True(t, tableExists(t, db, table), "table %s should exist", table)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_subscriptions_user_status'`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count, "Index should exist")
}

func TestMigrationIdempotency(t *testing.T) {
	dsn := sqliteDSN(t)

	require.NoError(t, Run(config.DriverSQLite, dsn))
	require.NoError(t, Run(config.DriverSQLite, dsn), "Running migrations twice should not fail")

	version, dirty, err := Version(config.DriverSQLite, dsn)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}

func TestVersionBeforeMigrations(t *testing.T) {
	version, dirty, err := Version(config.DriverSQLite, sqliteDSN(t))
	require.NoError(t, err)
	require.False(t, dirty)
	require.Zero(t, version)
}

func TestRunUnsupportedDriver(t *testing.T) {
	require.Error(t, Run("mysql", "dsn"))
}
