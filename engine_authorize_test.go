package tenantauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func principalFor(t *testing.T, env *testEnv, email string) *AuthResult {
	t.Helper()
	ctx := context.Background()
	pair := env.login(t, ctx, email)
	p, err := env.engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return p
}

func TestAuthorizeTenantIsolation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addUser(t, "sup", "sup@example.com", "supervisor", "")
	env.addUser(t, "adm", "adm@example.com", "admin", "c1")
	env.addUser(t, "emp", "emp@example.com", "employee", "c1")
	env.addUser(t, "nobody", "nobody@example.com", "empty", "c1")

	sup := principalFor(t, env, "sup@example.com")
	adm := principalFor(t, env, "adm@example.com")
	emp := principalFor(t, env, "emp@example.com")
	nobody := principalFor(t, env, "nobody@example.com")

	if !sup.TenantUnscoped || sup.CompanyID != "" {
		t.Fatalf("supervisor must be tenant-unscoped: %+v", sup)
	}
	if adm.TenantUnscoped {
		t.Fatalf("admin must be tenant-scoped")
	}

	ctx := context.Background()
	for _, tc := range []struct {
		name      string
		principal *AuthResult
		perm      string
		company   string
		want      error
	}{
		{"admin own company", adm, "manage_users", "c1", nil},
		{"admin foreign company", adm, "manage_users", "c2", ErrTenantMismatch},
		{"admin unscoped resource", adm, "view_reports", "", nil},
		{"admin lacks permission", adm, "manage_companies", "c1", ErrInsufficientPermission},
		{"employee lacks permission", emp, "manage_users", "c1", ErrInsufficientPermission},
		{"employee foreign reports", emp, "view_reports", "c2", ErrTenantMismatch},
		{"employee lacks permission in foreign company", emp, "manage_users", "c2", ErrTenantMismatch},
		{"supervisor any company", sup, "manage_users", "c2", nil},
		{"supervisor companies", sup, "manage_companies", "", nil},
		{"empty role denied", nobody, "view_reports", "c1", ErrInsufficientPermission},
		{"unknown permission", sup, "launch_rockets", "", ErrInsufficientPermission},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := env.engine.Authorize(ctx, tc.principal, tc.perm, tc.company)
			if tc.want == nil && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricTenantMismatch] != 3 {
		t.Fatalf("expected 3 tenant mismatches, got %d", snap.Counters[MetricTenantMismatch])
	}
	if snap.Counters[MetricAuthorizeDenied] != 7 {
		t.Fatalf("expected 7 denials, got %d", snap.Counters[MetricAuthorizeDenied])
	}
}

func TestAuthorizeNilPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.engine.Authorize(context.Background(), nil, "view_reports", ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestResolvePermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	got, err := env.engine.ResolvePermissions(ctx, "admin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 || got[0] != "manage_users" || got[1] != "view_reports" {
		t.Fatalf("unexpected admin permissions: %v", got)
	}

	got, err = env.engine.ResolvePermissions(ctx, "empty")
	if err != nil {
		t.Fatalf("resolve empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no permissions, got %v", got)
	}
}

func TestResolvePermissionsCacheInvalidation(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Permission.CacheTTL = time.Minute })
	ctx := context.Background()

	if _, err := env.engine.ResolvePermissions(ctx, "employee"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	env.store.mu.Lock()
	env.store.links["employee"] = []string{"view_reports", "manage_users"}
	env.store.mu.Unlock()

	got, _ := env.engine.ResolvePermissions(ctx, "employee")
	if len(got) != 1 {
		t.Fatalf("expected cached permissions, got %v", got)
	}

	env.engine.InvalidateRolePermissions("employee")
	got, _ = env.engine.ResolvePermissions(ctx, "employee")
	if len(got) != 2 {
		t.Fatalf("expected fresh permissions after invalidation, got %v", got)
	}
}
