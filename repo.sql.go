package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // sqlite3 dialect
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Ensure sqlStore implements Store.
var _ Store = (*sqlStore)(nil)

const (
	tableBooks        = "books"
	tableTransactions = "book_transactions"
	tableUsers        = "users"
)

// sqliteDSNParams are appended to the sqlite dsn. Transactions start with
// BEGIN IMMEDIATE so that two borrows of the same book cannot interleave.
var sqliteDSNParams = []string{
	"_txlock=immediate",
	"_journal_mode=WAL",
	"_busy_timeout=10000",
	"_foreign_keys=on",
}

// sqlStore is the relational implementation of Store. The
// same code serves sqlite and postgres through goqu dialects.
type sqlStore struct {
	sqlRepos
	logger *zap.Logger
	db     *sqlx.DB
	driver string
}

// sqlRepos binds the repositories to a database handle which
// is either the connections pool or an ongoing transaction.
// The lock flag makes single row reads take a row lock.
type sqlRepos struct {
	q       sqlx.ExtContext
	dialect goqu.DialectWrapper
	lock    bool
}

func (r sqlRepos) Books() BookStorage {
	return &sqlBookStorage{r}
}

func (r sqlRepos) Ledger() LedgerStorage {
	return &sqlLedgerStorage{r}
}

func (r sqlRepos) Users() UserStorage {
	return &sqlUserStorage{r}
}

// GetSQLDB opens and configures the connections pool of the configured driver.
func GetSQLDB(config *DatabaseConfig) (*sqlx.DB, error) {
	driverName, dsn := config.Driver, config.DSN
	switch config.Driver {
	case DriverPostgres:
		driverName = "pgx"
	case DriverSQLite:
		dsn = BuildSQLiteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open the database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	return db, nil
}

// BuildSQLiteDSN appends the locking and journaling parameters to a sqlite dsn.
func BuildSQLiteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	params := make([]string, 0, len(sqliteDSNParams))
	for _, p := range sqliteDSNParams {
		if !strings.Contains(dsn, strings.SplitN(p, "=", 2)[0]+"=") {
			params = append(params, p)
		}
	}
	if len(params) == 0 {
		return dsn
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLStore provides a relational store on top of the given pool.
func NewSQLStore(logger *zap.Logger, db *sqlx.DB, driver string) Store {
	return &sqlStore{
		sqlRepos: sqlRepos{q: db, dialect: goqu.Dialect(driver)},
		logger:   logger,
		db:       db,
		driver:   driver,
	}
}

// Atomic runs fn inside a single database transaction. It commits when fn
// returns nil and rolls back on any error or panic. A cancelled context
// rolls the transaction back as well.
func (s *sqlStore) Atomic(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}

		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				s.logger.Error("store: failed to rollback transaction", zap.Error(rerr))
			}
			return
		}

		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("store: failed to commit transaction: %w", cerr)
		}
	}()

	return fn(ctx, sqlRepos{q: tx, dialect: s.dialect, lock: s.driver == DriverPostgres})
}

// Ping checks the database is reachable.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connections pool.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err comes from a unique constraint.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isCheckViolation reports whether err comes from a check constraint.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}

// sqlBuilder is a goqu dataset which renders into a statement.
type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (r sqlRepos) get(ctx context.Context, dest interface{}, ds sqlBuilder) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.GetContext(ctx, r.q, dest, query, args...)
}

func (r sqlRepos) selectAll(ctx context.Context, dest interface{}, ds sqlBuilder) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.SelectContext(ctx, r.q, dest, query, args...)
}

// exec runs a write statement and returns the number of affected rows.
func (r sqlRepos) exec(ctx context.Context, ds sqlBuilder) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
