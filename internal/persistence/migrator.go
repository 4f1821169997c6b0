package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"CDPLedger/internal/observability"
)

// Migrator applies the schema files under migrationsDir to Postgres.
// Files follow the golang-migrate layout, {version}_{name}.up.sql with a
// matching .down.sql, and are applied in lexical version order. Each file
// runs inside its own transaction together with the bookkeeping insert, so
// a failed migration leaves no partial record behind.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string) *Migrator {
	return &Migrator{
		db:  db,
		dir: migrationsDir,
		log: observability.NewLogger("migrator"),
	}
}

// Up applies every up-migration that has not been recorded yet.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure version table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("load applied versions: %w", err)
	}

	names, err := m.migrationNames(".up.sql")
	if err != nil {
		return fmt.Errorf("scan migrations dir: %w", err)
	}

	for _, name := range names {
		version := migrationVersion(name)
		if applied[version] {
			continue
		}
		if err := m.runMigration(ctx, name,
			`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
			version, name,
		); err != nil {
			return err
		}
		m.log.Info().Str("migration", name).Msg("migration applied")
	}

	return nil
}

// Down rolls back the most recently applied migration, if any.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure version table: %w", err)
	}

	var version, upName string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &upName)
	if err == sql.ErrNoRows {
		m.log.Info().Msg("nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest version: %w", err)
	}

	downName := strings.Replace(upName, ".up.sql", ".down.sql", 1)
	if err := m.runMigration(ctx, downName,
		`DELETE FROM public.schema_migrations WHERE version = $1`,
		version,
	); err != nil {
		return err
	}
	m.log.Info().Str("migration", downName).Msg("migration rolled back")

	return nil
}

// runMigration executes one migration file and its bookkeeping statement in
// a single transaction.
func (m *Migrator) runMigration(ctx context.Context, name, record string, recordArgs ...any) error {
	script, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("exec migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, record, recordArgs...); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// The version table lives in public, not cdp_log, because it must exist
// before the first migration creates the cdp_log schema.
func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// migrationNames lists the files in the migrations directory with the given
// suffix, sorted so zero-padded versions apply in order.
func (m *Migrator) migrationNames(suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// migrationVersion returns the zero-padded prefix of a migration filename,
// "000001" for "000001_cdp_log.up.sql".
func migrationVersion(name string) string {
	version, _, found := strings.Cut(name, "_")
	if !found {
		return name
	}
	return version
}
