package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/tenantauth"
)

func newMock(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, opts...), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var userCols = []string{"id", "email", "role_id", "company_id", "password_hash", "active", "created_at"}

func TestGetUserByEmail(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("select id, email, role_id.*from users where email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "alice@example.com", "employee", "c1", "$argon2id$x", true, created))
	mock.ExpectQuery("from users where email").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := s.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.UserID != "u1" || u.CompanyID != "c1" || !u.Active || !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := s.GetUserByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, tenantauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreateUserChecksRoleAndCompany(t *testing.T) {
	s, mock := newMock(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select tenant_scoped from roles").WithArgs("employee").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_scoped"}).AddRow(true))
	mock.ExpectQuery("select 1 from companies").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery("insert into users").
		WithArgs("u1", "alice@example.com", "hash", "employee", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	rec, err := s.CreateUser(context.Background(), tenantauth.CreateUserInput{
		UserID: "u1", Email: "alice@example.com", PasswordHash: "hash", RoleID: "employee", CompanyID: "c1",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if !rec.Active || !rec.CreatedAt.Equal(created) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	expectationsMet(t, mock)
}

func TestCreateUserRejections(t *testing.T) {
	for _, tc := range []struct {
		name  string
		in    tenantauth.CreateUserInput
		setup func(sqlmock.Sqlmock)
		want  error
	}{
		{
			name: "unknown role",
			in:   tenantauth.CreateUserInput{UserID: "u1", Email: "a@example.com", RoleID: "pilot"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("select tenant_scoped from roles").WithArgs("pilot").WillReturnError(sql.ErrNoRows)
			},
			want: tenantauth.ErrRoleNotFound,
		},
		{
			name: "scoped role without company",
			in:   tenantauth.CreateUserInput{UserID: "u1", Email: "a@example.com", RoleID: "employee"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("select tenant_scoped from roles").WithArgs("employee").
					WillReturnRows(sqlmock.NewRows([]string{"tenant_scoped"}).AddRow(true))
			},
			want: tenantauth.ErrInvalidUser,
		},
		{
			name: "missing company",
			in:   tenantauth.CreateUserInput{UserID: "u1", Email: "a@example.com", RoleID: "employee", CompanyID: "gone"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("select tenant_scoped from roles").WithArgs("employee").
					WillReturnRows(sqlmock.NewRows([]string{"tenant_scoped"}).AddRow(true))
				m.ExpectQuery("select 1 from companies").WithArgs("gone").WillReturnError(sql.ErrNoRows)
			},
			want: tenantauth.ErrInvalidUser,
		},
		{
			name: "duplicate email",
			in:   tenantauth.CreateUserInput{UserID: "u2", Email: "a@example.com", RoleID: "supervisor"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("select tenant_scoped from roles").WithArgs("supervisor").
					WillReturnRows(sqlmock.NewRows([]string{"tenant_scoped"}).AddRow(false))
				m.ExpectQuery("insert into users").
					WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"})
			},
			want: tenantauth.ErrEmailTaken,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectBegin()
			tc.setup(mock)
			mock.ExpectRollback()

			if _, err := s.CreateUser(context.Background(), tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			expectationsMet(t, mock)
		})
	}
}

func TestUpdatePasswordHashMissingUser(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("update users set password_hash").WithArgs("ghost", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpdatePasswordHash(context.Background(), "ghost", "hash"); !errors.Is(err, tenantauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

// Failed-login rows are append-only; deleting the account must not touch them.
func TestDeleteUserKeepsFailureHistory(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("delete from users").WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.DeleteUser(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	mock.ExpectExec("delete from users").WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.DeleteUser(context.Background(), "u1"); !errors.Is(err, tenantauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestSetUserActive(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("update users set active").WithArgs("u1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set active").WithArgs("ghost", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SetUserActive(context.Background(), "u1", false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if err := s.SetUserActive(context.Background(), "ghost", true); !errors.Is(err, tenantauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestRoleLookups(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("select id, name, tenant_scoped from roles").WithArgs("supervisor").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "tenant_scoped"}).AddRow("supervisor", "Supervisor", false))
	mock.ExpectQuery("select id, name, tenant_scoped from roles").WithArgs("pilot").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select permission from role_permissions").WithArgs("empty").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}))

	r, err := s.GetRole(context.Background(), "supervisor")
	if err != nil || r.TenantScoped {
		t.Fatalf("unexpected role %+v err=%v", r, err)
	}
	if _, err := s.GetRole(context.Background(), "pilot"); !errors.Is(err, tenantauth.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	perms, err := s.PermissionsForRole(context.Background(), "empty")
	if err != nil {
		t.Fatalf("PermissionsForRole: %v", err)
	}
	if perms == nil || len(perms) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", perms)
	}
	expectationsMet(t, mock)
}

func TestGrantAndRevokeInvalidateRole(t *testing.T) {
	var changed []string
	s, mock := newMock(t, WithRoleChangeHook(func(roleID string) { changed = append(changed, roleID) }))

	mock.ExpectExec("insert into role_permissions").WithArgs("admin", "manage_users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_permissions").WithArgs("admin", "launch_rockets").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "role_permissions_permission_fkey"})
	mock.ExpectExec("delete from role_permissions").WithArgs("admin", "manage_users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from role_permissions").WithArgs("admin", "manage_users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := s.GrantPermission(ctx, "admin", "manage_users"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := s.GrantPermission(ctx, "admin", "launch_rockets"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown permission, got %v", err)
	}
	if err := s.RevokePermission(ctx, "admin", "manage_users"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.RevokePermission(ctx, "admin", "manage_users"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second revoke, got %v", err)
	}

	if len(changed) != 2 || changed[0] != "admin" || changed[1] != "admin" {
		t.Fatalf("hook must fire once per successful change, got %v", changed)
	}
	expectationsMet(t, mock)
}

func TestCompaniesAndPermissions(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("insert into companies").WithArgs(sqlmock.AnyArg(), "Acme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into companies").WithArgs(sqlmock.AnyArg(), "Acme").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "companies_name_key"})
	mock.ExpectExec("delete from companies").WithArgs("c-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from permissions").WithArgs("view_reports").
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})

	c, err := s.CreateCompany(ctx, " Acme ")
	if err != nil || c.ID == "" || c.Name != "Acme" {
		t.Fatalf("unexpected company %+v err=%v", c, err)
	}
	if _, err := s.CreateCompany(ctx, "Acme"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.DeleteCompany(ctx, "c-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.CreatePermission(ctx, "Manage Users", ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if err := s.DeletePermission(ctx, "view_reports"); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestAuditWriterCopiesLoginFailures(t *testing.T) {
	s, mock := newMock(t)
	w := s.AuditWriter()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("insert into audit_log").
		WithArgs("e1", at, "login_failure", "", "", "", "192.0.2.1", "", false, "invalid_credentials", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into failed_login_attempts").
		WithArgs("alice@example.com", "192.0.2.1", "password_mismatch", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("insert into audit_log").
		WithArgs("e2", at, "session_created", "u1", "c1", "s1", "", "", true, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	err := w.Write(ctx, tenantauth.AuditEvent{
		ID: "e1", Timestamp: at, EventType: "login_failure", IP: "192.0.2.1", Error: "invalid_credentials",
		Metadata: map[string]string{"email": "alice@example.com", "reason": "password_mismatch"},
	})
	if err != nil {
		t.Fatalf("write failure event: %v", err)
	}
	err = w.Write(ctx, tenantauth.AuditEvent{
		ID: "e2", Timestamp: at, EventType: "session_created", UserID: "u1", CompanyID: "c1", SessionID: "s1", Success: true,
	})
	if err != nil {
		t.Fatalf("write session event: %v", err)
	}
	expectationsMet(t, mock)
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	all, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(all) != 2 || all[0].Version != "0001_init" || all[1].Version != "0002_audit" {
		t.Fatalf("unexpected migrations: %+v", all)
	}
	for _, m := range all {
		if m.DownSQL == "" {
			t.Fatalf("migration %s lacks a down script", m.Version)
		}
	}
}

func TestMigrateAppliesPendingOnly(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select version from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_init"))
	mock.ExpectBegin()
	mock.ExpectExec("create table if not exists audit_log").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0002_audit").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ran, err := s.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(ran) != 1 || ran[0] != "0002_audit" {
		t.Fatalf("unexpected applied set: %v", ran)
	}
	expectationsMet(t, mock)
}
