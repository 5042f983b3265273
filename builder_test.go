package tenantauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMemStore()
	notifier := &captureNotifier{}

	cases := []struct {
		name  string
		build func() *Builder
	}{
		{"no redis", func() *Builder {
			return New().WithConfig(testConfig()).WithCredentialStore(store).WithNotifier(notifier)
		}},
		{"no store", func() *Builder {
			return New().WithConfig(testConfig()).WithRedis(rdb).WithNotifier(notifier)
		}},
		{"no notifier", func() *Builder {
			return New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(store)
		}},
		{"no signing key", func() *Builder {
			return New().WithRedis(rdb).WithCredentialStore(store).WithNotifier(notifier)
		}},
		{"blank purpose", func() *Builder {
			return New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(store).
				WithNotifier(notifier).WithOTPPurposes("")
		}},
		{"invalid permission name", func() *Builder {
			return New().WithConfig(testConfig()).WithRedis(rdb).WithCredentialStore(store).
				WithNotifier(notifier).WithPermissions("bad name!")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build().Build(); err == nil {
				t.Fatal("expected build error")
			}
		})
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := New().WithConfig(testConfig()).WithRedis(rdb).
		WithCredentialStore(newMemStore()).WithNotifier(&captureNotifier{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestZeroEngineIsNotReady(t *testing.T) {
	var e Engine
	if _, err := e.Login(context.Background(), "a@example.com", testPassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Refresh(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestRegisteredPermissionsFilterUnknownLinks(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMemStore()
	store.links["employee"] = []string{"view_reports", "legacy_flag"}

	engine, err := New().WithConfig(testConfig()).WithRedis(rdb).
		WithCredentialStore(store).WithNotifier(&captureNotifier{}).
		WithPermissions("view_reports", "manage_users", "manage_companies").
		WithOTPPurposes("email_change").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	got, err := engine.ResolvePermissions(context.Background(), "employee")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || got[0] != "view_reports" {
		t.Fatalf("unregistered links must be dropped, got %v", got)
	}
	if !engine.knownPurpose("email_change") || engine.knownPurpose("wire_transfer") {
		t.Fatalf("purpose registration not applied: %v", engine.purposes)
	}
}

func TestLockoutErrorMatchesSentinel(t *testing.T) {
	var err error = &LockoutError{RetryAfter: 1500 * time.Millisecond}
	if !errors.Is(err, ErrLoginLocked) {
		t.Fatalf("LockoutError must match ErrLoginLocked")
	}
	if err.Error() != "login temporarily locked: retry after 2s" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
