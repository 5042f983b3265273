package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// Migration is one embedded schema step.
type Migration struct {
	Version string
	UpSQL   string
	DownSQL string
}

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	byVersion := map[string]*Migration{}
	for _, e := range entries {
		name := e.Name()
		var version string
		var up bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			version, up = strings.TrimSuffix(name, ".up.sql"), true
		case strings.HasSuffix(name, ".down.sql"):
			version = strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}
		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s has no up script", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies all pending migrations, each in its own transaction, and
// returns the versions it applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, m := range all {
		if done[m.Version] {
			continue
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `insert into `+migrationsTable+`(version, applied_at) values ($1, now())`, m.Version)
			return err
		}); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		ran = append(ran, m.Version)
	}
	return ran, nil
}

// Rollback reverts the most recently applied migration.
func (s *Store) Rollback(ctx context.Context) (string, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return "", err
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]

	all, err := Migrations()
	if err != nil {
		return "", err
	}
	var down string
	for _, m := range all {
		if m.Version == last {
			down = m.DownSQL
		}
	}
	if down == "" {
		return "", fmt.Errorf("missing down migration for %s", last)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `delete from `+migrationsTable+` where version = $1`, last)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return last, nil
}

// AppliedMigrations lists applied versions in order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select version from `+migrationsTable+` order by version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `create table if not exists `+migrationsTable+` (
		version    text primary key,
		applied_at timestamptz not null
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}
