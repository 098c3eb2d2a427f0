package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	"go.uber.org/zap"
)

// schemaVersion is the version of the latest migration.
const schemaVersion = 1

// sqlMigrations lists per driver the statements of each schema version.
var sqlMigrations = map[string][][]string{
	DriverSQLite: {
		{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				password TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS books (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				isbn TEXT NOT NULL UNIQUE,
				publication_year INTEGER NOT NULL,
				cover_image TEXT,
				quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS book_transactions (
				id TEXT PRIMARY KEY,
				book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				borrow_date TIMESTAMP NOT NULL,
				return_date TIMESTAMP
			);`,
			`CREATE INDEX IF NOT EXISTS idx_book_transactions_book ON book_transactions(book_id, borrow_date);`,
			`CREATE INDEX IF NOT EXISTS idx_book_transactions_user ON book_transactions(user_id);`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_book_transactions_open ON book_transactions(book_id, user_id) WHERE return_date IS NULL;`,
		},
	},
	DriverPostgres: {
		{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				password TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS books (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				isbn TEXT NOT NULL UNIQUE,
				publication_year INTEGER NOT NULL,
				cover_image TEXT,
				quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS book_transactions (
				id TEXT PRIMARY KEY,
				book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				borrow_date TIMESTAMPTZ NOT NULL,
				return_date TIMESTAMPTZ
			);`,
			`CREATE INDEX IF NOT EXISTS idx_book_transactions_book ON book_transactions(book_id, borrow_date);`,
			`CREATE INDEX IF NOT EXISTS idx_book_transactions_user ON book_transactions(user_id);`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_book_transactions_open ON book_transactions(book_id, user_id) WHERE return_date IS NULL;`,
		},
	},
}

// Migrate brings the schema to the latest version. The current
// version is tracked in the meta table so that applied versions
// are skipped on the next run.
func (s *sqlStore) Migrate(ctx context.Context) error {
	migrations, ok := sqlMigrations[s.driver]
	if !ok {
		return fmt.Errorf("store: no migrations for driver %q", s.driver)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("store: failed to create meta table: %w", err)
	}

	current, err := s.currentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	for version := current + 1; version <= schemaVersion && version <= len(migrations); version++ {
		err = s.Atomic(ctx, func(ctx context.Context, repos Repositories) error {
			r := repos.(sqlRepos)
			for _, stmt := range migrations[version-1] {
				if _, err := r.q.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := r.exec(ctx, r.dialect.Insert("meta").
				Rows(goqu.Record{"key": "schema_version", "value": strconv.Itoa(version)}).
				OnConflict(goqu.DoUpdate("key", goqu.Record{"value": goqu.I("excluded.value")})).
				Prepared(true))
			return err
		})
		if err != nil {
			return fmt.Errorf("store: failed to apply migration %d: %w", version, err)
		}
		s.logger.Info("store: migration applied", zap.String("store.driver", s.driver), zap.Int("schema.version", version))
	}
	return nil
}

func (s *sqlStore) currentSchemaVersion(ctx context.Context) (int, error) {
	var value string
	err := s.get(ctx, &value, s.dialect.From("meta").
		Select("value").
		Where(goqu.C("key").Eq("schema_version")).
		Prepared(true))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to read schema version: %w", err)
	}
	return strconv.Atoi(value)
}
