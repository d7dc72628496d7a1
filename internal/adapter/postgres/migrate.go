package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var migrationName = regexp.MustCompile(`^(\d+)_.+\.up\.sql$`)

type migration struct {
	version int
	name    string
}

func listMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []migration
	for _, e := range entries {
		m := migrationName.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: v, name: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Migrate applies pending embedded migrations, each in its own transaction,
// and returns the names of the ones it applied
func Migrate(ctx context.Context, db DB) ([]string, error) {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version BIGINT PRIMARY KEY, name TEXT NOT NULL, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := listMigrations()
	if err != nil {
		return nil, err
	}

	applied := map[int]bool{}
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var done []string
	for _, f := range files {
		if applied[f.version] {
			continue
		}
		body, err := fs.ReadFile(migrationFiles, "migrations/"+f.name)
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", f.name, err)
		}
		stmt := strings.TrimSpace(string(body))
		if stmt == "" {
			continue
		}

		if err := applyMigration(ctx, db, f, stmt); err != nil {
			return done, err
		}
		done = append(done, f.name)
	}
	return done, nil
}

func applyMigration(ctx context.Context, db DB, f migration, stmt string) error {
	err := WithTx(ctx, db, func(tx Tx) error {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s failed: %w", f.name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version, name, applied_at) VALUES($1, $2, $3)`,
			f.version, f.name, time.Now().UTC()); err != nil {
			return fmt.Errorf("record migration %s: %w", f.name, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply %s: %w", f.name, err)
	}
	return nil
}
