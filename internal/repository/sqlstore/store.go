// Package sqlstore implements the repository interfaces on database/sql,
// for PostgreSQL (production) and SQLite (fallback, development, tests).
//
// DRIVERS:
//   - PostgreSQL via github.com/jackc/pgx/v5/stdlib, registered as "pgx"
//   - SQLite via modernc.org/sqlite, a pure Go translation of SQLite:
//     no CGo, no C compiler, cross-compiles everywhere Go does
//
// Both speak the same SQL for everything we need (ON CONFLICT upserts,
// RETURNING, scalar subqueries). The only dialect difference the queries see
// is the placeholder style, handled by dialect.rebind.
//
// SCHEMA:
// Migrations are embedded SQL files applied with pressly/goose at startup,
// one directory per dialect under migrations/.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	// BLANK IMPORTS:
	// Each driver's init() registers itself with database/sql ("pgx",
	// "sqlite"). After this, sql.Open knows how to talk to both.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/garirakho/gate-backend/internal/repository"
)

//go:embed migrations
var migrationsFS embed.FS

// Supported values for Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database.
type Config struct {
	Driver string // DriverSQLite or DriverPostgres
	DSN    string // file path / ":memory:" for SQLite, URL for PostgreSQL
}

// DBTX is the subset of database/sql used by the repositories.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// compile-time check that *Store implements repository.Store
var _ repository.Store = (*Store)(nil)

// Store wraps a sql.DB connection pool and hands out units of work.
type Store struct {
	conn    *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open connects to the configured database and runs migrations.
//
// CONNECTION POOL:
// sql.Open() does NOT actually open a connection; it just creates a pool
// manager. We Ping to surface a bad path or URL now rather than on the first
// request.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	var (
		d   dialect
		dsn = cfg.DSN
	)
	switch cfg.Driver {
	case DriverSQLite:
		d = sqliteDialect
		dsn = sqliteDSN(cfg.DSN)
	case DriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	conn, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	if d.name == DriverSQLite {
		// One connection: SQLite has a single writer anyway, ":memory:"
		// databases are per-connection, and serializing transactions here
		// makes the first-user check race-free without table locks.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	if d.name == DriverSQLite {
		// WAL lets readers proceed while a write is in progress.
		// Foreign keys are OFF by default in SQLite; turn them on.
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				conn.Close()
				return nil, fmt.Errorf("sqlstore: %s: %w", pragma, err)
			}
		}
	}

	s := &Store{conn: conn, dialect: d, logger: logger}

	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return s, nil
}

// sqliteDSN adds the driver options we rely on. _time_format=sqlite makes
// modernc store timestamps as "2006-01-02 15:04:05.999999999-07:00", which
// sorts correctly as text.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_time_format=sqlite"
	}
	return path + "?_time_format=sqlite"
}

// gooseMu guards goose's package-level configuration (base FS, dialect,
// logger), which is shared by every Store in the process.
var gooseMu sync.Mutex

func (s *Store) migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{s.logger})
	if err := goose.SetDialect(s.dialect.gooseDialect); err != nil {
		return err
	}

	return goose.UpContext(ctx, s.conn, "migrations/"+s.dialect.name)
}

// WithTx begins a transaction, runs fn with the repositories bound to it,
// and then commits on success or rolls back on error/panic. Panics are
// rethrown.
//
// The transaction must not outlive fn: do network calls (device commands)
// after WithTx returns, never inside it.
func (s *Store) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("sqlstore: committing transaction: %w", cErr)
		}
	}()

	err = fn(ctx, &unitOfWork{q: tx, dialect: s.dialect})
	return err
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Driver reports which database backs the store.
func (s *Store) Driver() string {
	return s.dialect.name
}

// unitOfWork implements repository.Tx over one *sql.Tx.
type unitOfWork struct {
	q       DBTX
	dialect dialect
}

func (u *unitOfWork) Users() repository.UserRepository {
	return &UserRepo{q: u.q, dialect: u.dialect}
}

func (u *unitOfWork) Devices() repository.DeviceRepository {
	return &DeviceRepo{q: u.q, dialect: u.dialect}
}

// gooseLogger routes goose's progress output to slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	// goose only calls Fatalf from its CLI helpers; never exit a server for it.
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}
