package database

import (
	"context"
	"database/sql"
	"embed"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const queryCreateMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const queryMigrationExists = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`

const queryRecordMigration = `INSERT INTO schema_migrations (version) VALUES ($1)`

// Migrate applies every embedded migration not yet recorded in
// schema_migrations. It is safe to call on every start.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) error {
	if _, err := db.ExecContext(ctx, queryCreateMigrationsTable); err != nil {
		return errors.Wrap(err, "create schema_migrations table")
	}

	versions, err := migrationVersions()
	if err != nil {
		return err
	}

	applied := 0
	for _, version := range versions {
		ok, err := applyMigration(ctx, db, version, logger)
		if err != nil {
			return err
		}
		if ok {
			applied++
		}
	}
	logger.Infow("database: migrations up to date", "applied", applied, "total", len(versions))
	return nil
}

func migrationVersions() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

func applyMigration(ctx context.Context, db *sql.DB, version string, logger *zap.SugaredLogger) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx, queryMigrationExists, version).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check migration %s", version)
	}
	if exists {
		return false, nil
	}

	body, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return false, errors.Wrapf(err, "read migration %s", version)
	}

	logger.Infow("database: applying migration", "version", version)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin migration tx")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Errorw("database: migration rollback failed", "version", version, "error", rbErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return false, errors.Wrapf(err, "exec migration %s", version)
	}
	if _, err := tx.ExecContext(ctx, queryRecordMigration, version); err != nil {
		return false, errors.Wrapf(err, "record migration %s", version)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrapf(err, "commit migration %s", version)
	}
	return true, nil
}
