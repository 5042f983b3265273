package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/permission"
)

var (
	// ErrNotFound is returned by admin helpers for a missing company, role
	// or permission.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a name or id is already taken.
	ErrConflict = errors.New("already exists")
	// ErrInUse is returned when a permission is still linked to a role.
	ErrInUse = errors.New("still referenced")
	// ErrInvalidName rejects a permission name outside [a-z0-9_:.].
	ErrInvalidName = errors.New("invalid permission name")
)

// CreateCompany adds a tenant with a generated id.
func (s *Store) CreateCompany(ctx context.Context, name string) (tenantauth.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return tenantauth.Company{}, fmt.Errorf("company name required")
	}
	c := tenantauth.Company{ID: uuid.NewString(), Name: name}
	if _, err := s.db.ExecContext(ctx, `insert into companies (id, name) values ($1, $2)`, c.ID, c.Name); err != nil {
		return tenantauth.Company{}, classifyAdmin(err)
	}
	return c, nil
}

// DeleteCompany removes a tenant. Its users stay behind without a company
// and can no longer log in until reassigned.
func (s *Store) DeleteCompany(ctx context.Context, companyID string) error {
	res, err := s.db.ExecContext(ctx, `delete from companies where id = $1`, companyID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotFound)
}

// CreateRole adds a role. An empty ID is generated.
func (s *Store) CreateRole(ctx context.Context, r tenantauth.Role) (tenantauth.Role, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	_, err := s.db.ExecContext(ctx, `insert into roles (id, name, tenant_scoped) values ($1, $2, $3)`, r.ID, r.Name, r.TenantScoped)
	if err != nil {
		return tenantauth.Role{}, classifyAdmin(err)
	}
	return r, nil
}

// CreatePermission defines a permission name. Names are immutable once
// linked; there is no rename.
func (s *Store) CreatePermission(ctx context.Context, name, description string) error {
	if !permission.ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	_, err := s.db.ExecContext(ctx, `insert into permissions (name, description) values ($1, $2)`, name, description)
	return classifyAdmin(err)
}

// DeletePermission removes an unlinked permission.
func (s *Store) DeletePermission(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where name = $1`, name)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", ErrInUse, name)
	}
	if err != nil {
		return err
	}
	return requireRow(res, ErrNotFound)
}

// GrantPermission links a permission to a role. Granting twice is a no-op.
func (s *Store) GrantPermission(ctx context.Context, roleID, perm string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission) values ($1, $2)
		on conflict do nothing
	`, roleID, perm)
	if err != nil {
		return classifyAdmin(err)
	}
	s.roleChanged(roleID)
	return nil
}

// RevokePermission unlinks a permission from a role.
func (s *Store) RevokePermission(ctx context.Context, roleID, perm string) error {
	res, err := s.db.ExecContext(ctx, `delete from role_permissions where role_id = $1 and permission = $2`, roleID, perm)
	if err != nil {
		return err
	}
	if err := requireRow(res, ErrNotFound); err != nil {
		return err
	}
	s.roleChanged(roleID)
	return nil
}

// ListCompanies returns all tenants ordered by name.
func (s *Store) ListCompanies(ctx context.Context) ([]tenantauth.Company, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from companies order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenantauth.Company
	for rows.Next() {
		var c tenantauth.Company
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) roleChanged(roleID string) {
	if s.onRoleChange != nil {
		s.onRoleChange(roleID)
	}
}

func classifyAdmin(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
	}
	return err
}
