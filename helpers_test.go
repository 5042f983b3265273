package tenantauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Correct-Horse-9"

type memStore struct {
	mu    sync.Mutex
	users map[string]UserRecord
	roles map[string]Role
	links map[string][]string
	fail  error
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]UserRecord{},
		roles: map[string]Role{
			"supervisor": {ID: "supervisor", Name: "Supervisor"},
			"admin":      {ID: "admin", Name: "Company admin", TenantScoped: true},
			"employee":   {ID: "employee", Name: "Employee", TenantScoped: true},
			"empty":      {ID: "empty", Name: "No permissions", TenantScoped: true},
		},
		links: map[string][]string{
			"supervisor": {"manage_companies", "manage_users", "view_reports"},
			"admin":      {"manage_users", "view_reports"},
			"employee":   {"view_reports"},
		},
	}
}

func (s *memStore) put(u UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return UserRecord{}, s.fail
	}
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (s *memStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return UserRecord{}, s.fail
	}
	u, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) CreateUser(_ context.Context, in CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == in.Email {
			return UserRecord{}, ErrEmailTaken
		}
	}
	u := UserRecord{
		UserID:       in.UserID,
		Email:        in.Email,
		RoleID:       in.RoleID,
		CompanyID:    in.CompanyID,
		PasswordHash: in.PasswordHash,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	s.users[u.UserID] = u
	return u, nil
}

func (s *memStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	s.users[userID] = u
	return nil
}

func (s *memStore) SetUserActive(_ context.Context, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = active
	s.users[userID] = u
	return nil
}

func (s *memStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, userID)
	return nil
}

func (s *memStore) GetRole(_ context.Context, roleID string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return r, nil
}

func (s *memStore) PermissionsForRole(_ context.Context, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.links[roleID]...), nil
}

func (s *memStore) hashOf(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].PasswordHash
}

type captureNotifier struct {
	mu       sync.Mutex
	otps     []OTPMessage
	resets   []ResetMessage
	otpErr   error
	resetErr error
}

func (n *captureNotifier) SendOTP(_ context.Context, msg OTPMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.otpErr != nil {
		return n.otpErr
	}
	n.otps = append(n.otps, msg)
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, msg ResetMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resetErr != nil {
		return n.resetErr
	}
	n.resets = append(n.resets, msg)
	return nil
}

func (n *captureNotifier) lastOTP(t *testing.T) OTPMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.otps) == 0 {
		t.Fatalf("no otp delivered")
	}
	return n.otps[len(n.otps)-1]
}

func (n *captureNotifier) lastReset(t *testing.T) ResetMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatalf("no reset token delivered")
	}
	return n.resets[len(n.resets)-1]
}

func (n *captureNotifier) otpCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.otps)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine   *Engine
	store    *memStore
	notifier *captureNotifier
	mr       *miniredis.Miniredis
	rdb      *redis.Client
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()
	return buildTestEnv(t, mutate, nil)
}

// newTestEnvWithSink enables auditing into sink.
func newTestEnvWithSink(t testing.TB, sink AuditSink) *testEnv {
	t.Helper()
	return buildTestEnv(t, func(c *Config) { c.Audit.Enabled = true }, sink)
}

func buildTestEnv(t testing.TB, mutate func(*Config), sink AuditSink) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store:    newMemStore(),
		notifier: &captureNotifier{},
		mr:       mr,
		rdb:      rdb,
	}
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(env.store).
		WithNotifier(env.notifier)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// addUser stores an active user with testPassword hashed at minimum cost.
func (env *testEnv) addUser(t testing.TB, id, email, role, company string) UserRecord {
	t.Helper()
	hasher, err := password.NewHasher(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := UserRecord{
		UserID:       id,
		Email:        email,
		RoleID:       role,
		CompanyID:    company,
		PasswordHash: hash,
		Active:       true,
	}
	env.store.put(u)
	return u
}

// login runs both login steps and returns the issued pair.
func (env *testEnv) login(t testing.TB, ctx context.Context, email string) *TokenPair {
	t.Helper()
	res, err := env.engine.Login(ctx, email, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	env.notifier.mu.Lock()
	code := env.notifier.otps[len(env.notifier.otps)-1].Code
	env.notifier.mu.Unlock()

	pair, err := env.engine.VerifyLoginOTP(ctx, res.UserID, code)
	if err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	return pair
}
