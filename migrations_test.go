package servicebus_test

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/servicebus"
)

func TestMigrationFiles(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			files, err := fs.Glob(servicebus.MigrationFiles, "migrations/"+driver+"/*.sql")
			require.NoError(t, err)
			assert.NotEmpty(t, files)

			for _, f := range files {
				content, err := fs.ReadFile(servicebus.MigrationFiles, f)
				require.NoError(t, err)
				assert.Contains(t, string(content), "{{prefix}}queue")
				assert.Contains(t, string(content), "{{prefix}}message")
				assert.Contains(t, string(content), "{{prefix}}queue_permission")
			}
		})
	}
}

func TestApplyMigrations_SQLite(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, servicebus.ApplyMigrations(ctx, db, "sqlite3", "test_"))
	require.NoError(t, servicebus.ApplyMigrations(ctx, db, "sqlite3", "test_"), "migrations are idempotent")

	for _, table := range []string{"test_queue", "test_message", "test_queue_permission"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestApplyMigrations_UnknownDriver(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = servicebus.ApplyMigrations(context.Background(), db, "oracle", "")
	require.Error(t, err)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeConfiguration))
}
