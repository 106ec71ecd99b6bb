package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/model"
	"github.com/garirakho/gate-backend/internal/repository"
)

// compile-time check that *UserRepo implements repository.UserRepository
var _ repository.UserRepository = (*UserRepo)(nil)

// UserRepo implements repository.UserRepository on one unit of work.
type UserRepo struct {
	q       DBTX
	dialect dialect
}

const userColumns = `id, email, full_name, password_hash, is_admin, created_at`

// CreateUser inserts a user and decides its admin flag in the same statement.
//
// FIRST USER IS ADMIN:
// "NOT EXISTS (SELECT 1 FROM users)" is evaluated by the INSERT itself, so
// the check and the write cannot be split by another signup:
//   - SQLite: the store runs with a single connection, and a write
//     transaction is exclusive anyway
//   - PostgreSQL: two concurrent transactions could both see an empty table
//     under READ COMMITTED, so we take a SHARE ROW EXCLUSIVE lock first.
//     It conflicts with itself, which serializes signups, but not with
//     the plain reads done by login and /api/me
//
// RETURNING gives back the generated id and the decided flag in one trip.
func (r *UserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if r.dialect.name == DriverPostgres {
		if _, err := r.q.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("sqlstore: locking users table: %w", err)
		}
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := r.q.QueryRowContext(ctx, r.dialect.rebind(
		`INSERT INTO users (email, full_name, password_hash, is_admin, created_at)
		 VALUES (?, ?, ?, NOT EXISTS (SELECT 1 FROM users), ?)
		 RETURNING id, is_admin`),
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.CreatedAt,
	).Scan(&user.ID, &user.IsAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlstore: inserting user %q: %w", user.Email, err)
	}

	return nil
}

// GetUserByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that id.
func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.q.QueryRowContext(ctx, r.dialect.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlstore: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by their (already normalized) email.
// Returns apperror.ErrNotFound if no user has that email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx, r.dialect.rebind(
		`SELECT `+userColumns+` FROM users WHERE email = ?`), email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user by email %q: %w", email, err)
	}
	return u, nil
}

// EmailExists reports whether a user with this email is registered.
func (r *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, r.dialect.rebind(
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`), email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking email %q: %w", email, err)
	}
	return exists, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
