package tenantauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/internal"
	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/internal/stores"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/session"
	"go.uber.org/zap"
)

// Engine is the authentication core. It is safe for concurrent use once
// returned by Builder.Build.
type Engine struct {
	config   Config
	log      *zap.Logger
	store    CredentialStore
	notifier Notifier

	resolver *permission.Resolver
	purposes []string

	sessions *session.Store
	otps     *stores.OTPStore
	resets   *stores.PasswordResetStore
	failures *limiters.FailureTracker
	limiter  *rate.Limiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	hasher    *password.Hasher
	dummyHash string
	jwt       *jwt.Manager

	flows flows.Service
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Health pings Redis. The credential store is checked by its owner.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{
		RedisOK:      err == nil,
		RedisLatency: latency,
		AuditDropped: e.AuditDropped(),
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) warn(msg string, err error) {
	e.log.Warn(msg, zap.Error(err))
}

func (e *Engine) knownPurpose(purpose string) bool {
	for _, p := range e.purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newDummyHash(h *password.Hasher) (string, error) {
	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	return h.Hash("dummy:" + id.String())
}

// lookupByEmail adapts the credential store to the flow view. The role is
// not loaded here so unknown and known emails cost the same.
func (e *Engine) lookupByEmail(ctx context.Context, email string) (flows.User, bool, error) {
	rec, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return flows.User{}, false, nil
		}
		return flows.User{}, false, unavailable(err)
	}
	return flowUser(rec), true, nil
}

// loadUser returns an active user joined with its role.
func (e *Engine) loadUser(ctx context.Context, userID string) (flows.User, bool, error) {
	rec, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return flows.User{}, false, nil
		}
		return flows.User{}, false, unavailable(err)
	}
	u := flowUser(rec)
	if err := e.attachRole(ctx, &u); err != nil {
		return flows.User{}, false, err
	}
	return u, true, nil
}

func (e *Engine) attachRole(ctx context.Context, u *flows.User) error {
	role, err := e.store.GetRole(ctx, u.RoleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return ErrInvalidUser
		}
		return unavailable(err)
	}
	u.TenantUnscoped = !role.TenantScoped
	return nil
}

func flowUser(rec UserRecord) flows.User {
	return flows.User{
		UserID:       rec.UserID,
		Email:        rec.Email,
		RoleID:       rec.RoleID,
		CompanyID:    rec.CompanyID,
		PasswordHash: rec.PasswordHash,
		Active:       rec.Active,
	}
}

func clientMeta(ctx context.Context) flows.ClientMeta {
	return flows.ClientMeta{IP: clientIPFromContext(ctx), UserAgent: userAgentFromContext(ctx)}
}

func tokenPair(t flows.Tokens) *TokenPair {
	return &TokenPair{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		SessionID:        t.Session.SessionID,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: time.Unix(t.Session.ExpiresAt, 0),
	}
}
