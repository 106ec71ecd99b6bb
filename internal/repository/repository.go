// Package repository declares the persistence contracts the services use.
//
// All access goes through a unit of work: Store.WithTx opens a transaction,
// hands the callback a Tx exposing the repositories bound to it, and commits
// or rolls back when the callback returns. Nothing is cached between units of
// work; every request re-reads current state.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/garirakho/gate-backend/internal/model"
)

type UserRepository interface {
	// CreateUser inserts a user. IsAdmin is decided inside the same statement:
	// true iff the users table was empty. The created row (ID, IsAdmin,
	// CreatedAt filled in) is written back into user.
	// Returns apperror.ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type DeviceRepository interface {
	// Upsert creates the device row on first sight and otherwise replaces
	// every telemetry field, stamping last_seen with seenAt.
	Upsert(ctx context.Context, deviceID string, reading model.Telemetry, seenAt time.Time) (*model.Device, error)
	// List returns all devices, most recently seen first.
	List(ctx context.Context) ([]model.Device, error)
}

// Tx is one unit of work. Repositories obtained from it share the same
// transaction and must not be used after the WithTx callback returns.
type Tx interface {
	Users() UserRepository
	Devices() DeviceRepository
}

// Store hands out units of work.
type Store interface {
	WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
