package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store owns the connection pool and runs ledger transactions.
type Store struct {
	db      *sql.DB
	dialect Dialect
	queries *Queries
}

// Options selects and locates the backing database.
type Options struct {
	Dialect     Dialect
	SQLitePath  string
	DatabaseURL string
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	switch opts.Dialect {
	case Postgres:
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case SQLite, "":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", opts.Dialect)
	}
}

// SQLiteDSN builds a modernc DSN with immediate write transactions, WAL and
// a busy timeout so concurrent writers queue instead of failing.
func SQLiteDSN(path string) string {
	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_pragma", "busy_timeout(10000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + params.Encode()
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := SQLiteDSN(dbPath)
	db, err := sql.Open(SQLite.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return finishOpen(ctx, db, SQLite, dsn)
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is empty")
	}
	db, err := sql.Open(Postgres.DriverName(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	return finishOpen(ctx, db, Postgres, databaseURL)
}

func finishOpen(ctx context.Context, db *sql.DB, dialect Dialect, dsn string) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Ledger store ready", "dialect", string(dialect))

	return &Store{
		db:      db,
		dialect: dialect,
		queries: New(db, dialect),
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Queries returns the non-transactional query set for reads.
func (s *Store) Queries() *Queries {
	return s.queries
}

// InTx runs fn inside one transaction. Any error from fn rolls back.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(s.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
