package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/tenantauth"
)

func seeded() *Store {
	s := New()
	s.AddCompany("c1")
	s.AddRole(tenantauth.Role{ID: "admin", TenantScoped: true}, "manage_users")
	s.AddRole(tenantauth.Role{ID: "supervisor"}, "manage_companies")
	return s
}

func TestCreateUserEnforcesRoleCompanyRule(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	cases := []struct {
		name string
		in   tenantauth.CreateUserInput
		want error
	}{
		{"scoped with company", tenantauth.CreateUserInput{UserID: "u1", Email: "a@x.io", RoleID: "admin", CompanyID: "c1"}, nil},
		{"duplicate email", tenantauth.CreateUserInput{UserID: "u2", Email: "a@x.io", RoleID: "admin", CompanyID: "c1"}, tenantauth.ErrEmailTaken},
		{"scoped without company", tenantauth.CreateUserInput{UserID: "u3", Email: "b@x.io", RoleID: "admin"}, tenantauth.ErrInvalidUser},
		{"unscoped with company", tenantauth.CreateUserInput{UserID: "u4", Email: "c@x.io", RoleID: "supervisor", CompanyID: "c1"}, tenantauth.ErrInvalidUser},
		{"unknown company", tenantauth.CreateUserInput{UserID: "u5", Email: "d@x.io", RoleID: "admin", CompanyID: "c9"}, tenantauth.ErrInvalidUser},
		{"unknown role", tenantauth.CreateUserInput{UserID: "u6", Email: "e@x.io", RoleID: "ghost"}, tenantauth.ErrRoleNotFound},
		{"supervisor", tenantauth.CreateUserInput{UserID: "u7", Email: "f@x.io", RoleID: "supervisor"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateUser(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDeleteUserFreesEmail(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	in := tenantauth.CreateUserInput{UserID: "u1", Email: "a@x.io", RoleID: "admin", CompanyID: "c1"}
	if _, err := s.CreateUser(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "a@x.io"); !errors.Is(err, tenantauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := s.DeleteUser(ctx, "u1"); !errors.Is(err, tenantauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on second delete, got %v", err)
	}
}

func TestPermissionsForRoleIsACopy(t *testing.T) {
	s := seeded()
	perms, err := s.PermissionsForRole(context.Background(), "admin")
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	perms[0] = "tampered"

	again, _ := s.PermissionsForRole(context.Background(), "admin")
	if again[0] != "manage_users" {
		t.Fatalf("store was mutated through returned slice: %v", again)
	}
	none, _ := s.PermissionsForRole(context.Background(), "ghost")
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}
}
