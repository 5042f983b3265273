// Package pg is the Postgres database of record for users, companies, roles
// and their permission links. It also persists audit events.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/tenantauth"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements tenantauth.CredentialStore on database/sql with the pgx driver.
type Store struct {
	db           *sql.DB
	onRoleChange func(roleID string)
}

var _ tenantauth.CredentialStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRoleChangeHook registers fn to run after a role's permission links
// change, typically Engine.InvalidateRolePermissions.
func WithRoleChangeHook(fn func(roleID string)) Option {
	return func(s *Store) { s.onRoleChange = fn }
}

// PoolConfig tunes the database/sql pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used by Open.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 15 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Open connects with the pgx stdlib driver and applies pool settings.
func Open(dsn string, pool PoolConfig, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	return New(db, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const userColumns = `id, email, role_id, coalesce(company_id, ''), password_hash, active, created_at`

func scanUser(row interface{ Scan(...any) error }) (tenantauth.UserRecord, error) {
	var u tenantauth.UserRecord
	err := row.Scan(&u.UserID, &u.Email, &u.RoleID, &u.CompanyID, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenantauth.UserRecord{}, tenantauth.ErrUserNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (tenantauth.UserRecord, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (tenantauth.UserRecord, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, userID))
}

// CreateUser inserts the account after checking, inside the same
// transaction, that its role exists and its company is present iff the role
// is tenant scoped.
func (s *Store) CreateUser(ctx context.Context, in tenantauth.CreateUserInput) (tenantauth.UserRecord, error) {
	rec := tenantauth.UserRecord{
		UserID:       in.UserID,
		Email:        in.Email,
		RoleID:       in.RoleID,
		CompanyID:    in.CompanyID,
		PasswordHash: in.PasswordHash,
		Active:       true,
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var scoped bool
		err := tx.QueryRowContext(ctx, `select tenant_scoped from roles where id = $1`, in.RoleID).Scan(&scoped)
		if errors.Is(err, sql.ErrNoRows) {
			return tenantauth.ErrRoleNotFound
		}
		if err != nil {
			return err
		}
		if scoped != (in.CompanyID != "") {
			return tenantauth.ErrInvalidUser
		}
		if in.CompanyID != "" {
			var one int
			err := tx.QueryRowContext(ctx, `select 1 from companies where id = $1 for share`, in.CompanyID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return tenantauth.ErrInvalidUser
			}
			if err != nil {
				return err
			}
		}

		return tx.QueryRowContext(ctx, `
			insert into users (id, email, password_hash, role_id, company_id)
			values ($1, $2, $3, $4, nullif($5, ''))
			returning created_at
		`, in.UserID, in.Email, in.PasswordHash, in.RoleID, in.CompanyID).Scan(&rec.CreatedAt)
	})
	if err != nil {
		return tenantauth.UserRecord{}, classify(err)
	}
	return rec, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, userID, hash)
	if err != nil {
		return err
	}
	return requireRow(res, tenantauth.ErrUserNotFound)
}

// SetUserActive enables or disables an account.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `update users set active = $2, updated_at = now() where id = $1`, userID, active)
	if err != nil {
		return err
	}
	return requireRow(res, tenantauth.ErrUserNotFound)
}

// DeleteUser removes the account. Audit log and failed-login rows are
// append-only and kept.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, userID)
	if err != nil {
		return err
	}
	return requireRow(res, tenantauth.ErrUserNotFound)
}

func (s *Store) GetRole(ctx context.Context, roleID string) (tenantauth.Role, error) {
	var r tenantauth.Role
	err := s.db.QueryRowContext(ctx, `select id, name, tenant_scoped from roles where id = $1`, roleID).
		Scan(&r.ID, &r.Name, &r.TenantScoped)
	if errors.Is(err, sql.ErrNoRows) {
		return tenantauth.Role{}, tenantauth.ErrRoleNotFound
	}
	return r, err
}

// PermissionsForRole returns the role's linked permission names, sorted.
// A role without links yields an empty slice.
func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]string, error) {
	return s.strings(ctx, `select permission from role_permissions where role_id = $1 order by permission`, roleID)
}

// ListPermissions returns every defined permission name, sorted.
func (s *Store) ListPermissions(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `select name from permissions order by name`)
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// classify maps constraint violations that slipped past the in-transaction
// checks, for example a concurrent insert of the same email.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if strings.Contains(pgErr.ConstraintName, "email") {
			return tenantauth.ErrEmailTaken
		}
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", tenantauth.ErrInvalidUser, pgErr.ConstraintName)
	}
	return err
}
