package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every embedded migration for the driver behind db, in
// file name order. Statements are idempotent (IF NOT EXISTS).
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dir, err := migrationsDir(db.DriverName())
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := migrationsFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(b)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec migration %s: %w", name, err)
			}
		}
	}
	return nil
}

func migrationsDir(driver string) (string, error) {
	switch driver {
	case "mysql":
		return "migrations/mysql", nil
	case "sqlite":
		return "migrations/sqlite", nil
	case "clickhouse":
		return "migrations/clickhouse", nil
	default:
		return "", fmt.Errorf("no migrations for driver %q", driver)
	}
}

// splitStatements splits a migration file on ';'. Migrations must not
// contain semicolons inside literals.
func splitStatements(sql string) []string {
	var out []string
	for _, s := range strings.Split(sql, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
