//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/store/memory"
)

const testPassword = "Valid123!"

type codeNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *codeNotifier) SendOTP(_ context.Context, msg tenantauth.OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[msg.UserID] = msg.Code
	return nil
}

func (n *codeNotifier) SendPasswordReset(context.Context, tenantauth.ResetMessage) error { return nil }

func (n *codeNotifier) code(userID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[userID]
}

func newMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

// uniquePrefix keeps runs against a shared Redis apart.
func uniquePrefix(name string) string {
	return fmt.Sprintf("it-%s-%d", strings.ToLower(name), time.Now().UnixNano())
}

func seededStore() *memory.Store {
	store := memory.New()
	store.AddCompany("c1")
	store.AddRole(tenantauth.Role{ID: "admin", Name: "Company admin", TenantScoped: true}, "manage_users")
	return store
}

func testConfig() tenantauth.Config {
	cfg := tenantauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("i", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func newEngine(t *testing.T, rdb redis.UniversalClient, store tenantauth.CredentialStore, cfg tenantauth.Config) (*tenantauth.Engine, *codeNotifier) {
	t.Helper()
	n := &codeNotifier{}
	eng, err := tenantauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithNotifier(n).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng, n
}

// signIn creates email in company c1 and completes both login steps.
func signIn(t *testing.T, eng *tenantauth.Engine, n *codeNotifier, email string) *tenantauth.TokenPair {
	t.Helper()
	ctx := context.Background()
	if _, err := eng.CreateUser(ctx, tenantauth.NewUser{
		Email: email, Password: testPassword, RoleID: "admin", CompanyID: "c1",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	res, err := eng.Login(ctx, email, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	pair, err := eng.VerifyLoginOTP(ctx, res.UserID, n.code(res.UserID))
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}
	return pair
}
