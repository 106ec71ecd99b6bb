package sqlstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/garirakho/gate-backend/internal/repository"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that exists only for this connection.
// The store holds exactly one connection, so every test gets its own
// isolated database with the migrations already applied.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// inTx runs fn in a committed unit of work and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(ctx context.Context, tx repository.Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), nil, fn); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

// =========================================================================
// OPEN TESTS
// =========================================================================

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, slog.Default())
	if err == nil {
		t.Fatal("Open() should reject an unknown driver")
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Running the migrations a second time on the same database must be a no-op.
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if s.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q, want %q", s.Driver(), DriverSQLite)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

// =========================================================================
// UNIT OF WORK TESTS
// =========================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), nil, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Devices().Upsert(ctx, "dev-1", sampleReading(), testTime(0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}

	inTx(t, s, func(ctx context.Context, tx repository.Tx) error {
		devices, err := tx.Devices().List(ctx)
		if err != nil {
			return err
		}
		if len(devices) != 0 {
			t.Errorf("rolled back upsert is visible: %d devices", len(devices))
		}
		return nil
	})
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("WithTx() swallowed the panic")
			}
		}()
		_ = s.WithTx(context.Background(), nil, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Devices().Upsert(ctx, "dev-1", sampleReading(), testTime(0)); err != nil {
				return err
			}
			panic("handler bug")
		})
	}()

	// The single connection must be free again and the write gone.
	inTx(t, s, func(ctx context.Context, tx repository.Tx) error {
		devices, err := tx.Devices().List(ctx)
		if err != nil {
			return err
		}
		if len(devices) != 0 {
			t.Errorf("write from panicking unit of work is visible: %d devices", len(devices))
		}
		return nil
	})
}

func TestWithTx_Commits(t *testing.T) {
	s := newTestStore(t)

	inTx(t, s, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.Devices().Upsert(ctx, "dev-1", sampleReading(), testTime(0))
		return err
	})

	inTx(t, s, func(ctx context.Context, tx repository.Tx) error {
		devices, err := tx.Devices().List(ctx)
		if err != nil {
			return err
		}
		if len(devices) != 1 {
			t.Errorf("List() returned %d devices after commit, want 1", len(devices))
		}
		return nil
	})
}

// =========================================================================
// DIALECT TESTS
// =========================================================================

func TestRebind(t *testing.T) {
	query := `INSERT INTO t (a, b) VALUES (?, NOT EXISTS (SELECT 1 FROM t), ?)`

	if got := sqliteDialect.rebind(query); got != query {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}

	want := `INSERT INTO t (a, b) VALUES ($1, NOT EXISTS (SELECT 1 FROM t), $2)`
	if got := postgresDialect.rebind(query); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestSQLiteDSN(t *testing.T) {
	cases := map[string]string{
		":memory:":                  ":memory:?_time_format=sqlite",
		"garirakho.db":              "garirakho.db?_time_format=sqlite",
		"file.db?_txlock=immediate": "file.db?_txlock=immediate&_time_format=sqlite",
	}
	for in, want := range cases {
		if got := sqliteDSN(in); got != want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
