package servicebus

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// DefaultTablePrefix is the table prefix used when none is configured.
const DefaultTablePrefix = "servicebus_"

// MigrationFiles contains the SQL migrations of the SQL transport, one directory per
// dialect (mysql, postgres, sqlite3). Table names carry a `{{prefix}}` placeholder.
//
// Most users call ApplyMigrations. The files can also be fed to an external migration
// tool after replacing the placeholder.
//
//go:embed migrations/*/*.sql
var MigrationFiles embed.FS

// ApplyMigrations creates the queue, message and permission tables for driver.
// Statements are idempotent, so ApplyMigrations can run on every start.
//
// Parameters:
//   - db: Open database connection
//   - driver: "mysql", "postgres" or "sqlite3"
//   - prefix: Table prefix; empty means DefaultTablePrefix
func ApplyMigrations(ctx context.Context, db *sql.DB, driver, prefix string) error {
	if prefix == "" {
		prefix = DefaultTablePrefix
	}

	dir := path.Join("migrations", strings.ToLower(driver))
	entries, err := fs.ReadDir(MigrationFiles, dir)
	if err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, fmt.Sprintf("no migrations for driver %s", driver), err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(MigrationFiles, path.Join(dir, name))
		if err != nil {
			return NewErrorWithCause(ErrCodeDatabase, "failed to read migration "+name, err)
		}

		for _, stmt := range splitStatements(strings.ReplaceAll(string(content), "{{prefix}}", prefix)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return NewErrorWithCause(ErrCodeDatabase, "failed to apply migration "+name, err)
			}
		}
	}

	return nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
