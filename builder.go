package tenantauth

import (
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/internal/stores"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder is single use: configure it during
// initialization, call Build once and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store       CredentialStore
	notifier    Notifier
	permissions []string
	purposes    []string

	log       *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config:   DefaultConfig(),
		purposes: []string{PurposeLogin},
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, OTP challenges, reset tokens,
// failure windows and rate budgets.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithPermissions registers the known capability names. When set, permission
// links to any other name are ignored during resolution.
func (b *Builder) WithPermissions(perms ...string) *Builder {
	b.permissions = append(b.permissions, perms...)
	return b
}

// WithOTPPurposes registers additional OTP purposes besides PurposeLogin.
func (b *Builder) WithOTPPurposes(purposes ...string) *Builder {
	b.purposes = append(b.purposes, purposes...)
	return b
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	// -------- PERMISSIONS --------
	var registry *permission.Registry
	if len(b.permissions) > 0 {
		r, err := permission.NewRegistry(b.permissions...)
		if err != nil {
			return nil, err
		}
		r.Freeze()
		registry = r
	}
	resolver := permission.NewResolver(
		permission.RoleSourceFunc(b.store.PermissionsForRole),
		registry,
		permission.ResolverConfig{CacheTTL: cfg.Permission.CacheTTL},
	)

	purposes := make([]string, 0, len(b.purposes))
	seen := make(map[string]struct{}, len(b.purposes))
	for _, p := range b.purposes {
		if p == "" {
			return nil, errors.New("otp purpose must not be empty")
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		purposes = append(purposes, p)
	}

	// -------- STORES --------
	sessions := session.NewStore(b.redis, session.Config{
		Prefix:      cfg.Session.RedisPrefix,
		IdleTimeout: cfg.Session.IdleTimeout,
		RefreshTTL:  cfg.Session.RefreshTTL,
		MaxLifetime: cfg.Session.MaxLifetime,
	})

	tiers := make([]limiters.Tier, 0, len(cfg.Lockout.Tiers))
	for _, t := range cfg.Lockout.Tiers {
		tiers = append(tiers, limiters.Tier{Failures: t.Failures, Cooldown: t.Cooldown})
	}

	engine := &Engine{
		config:    cfg,
		log:       log.Named("tenantauth"),
		store:     b.store,
		notifier:  b.notifier,
		resolver:  resolver,
		purposes:  purposes,
		sessions:  sessions,
		otps:      stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix, cfg.OTP.ExpiredGrace),
		resets:    stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix, 0),
		failures: limiters.NewFailureTracker(b.redis, limiters.LockoutConfig{
			Enabled:   cfg.Lockout.Enabled,
			Prefix:    cfg.Lockout.RedisPrefix,
			Window:    cfg.Lockout.Window,
			Retention: cfg.Lockout.Retention,
			Tiers:     tiers,
		}),
		limiter: rate.New(b.redis, rate.Config{
			Prefix: cfg.Refresh.RateLimitPrefix,
			Rules: map[rate.Scope]rate.Rule{
				rate.ScopeOTPIssue:     {Max: cfg.OTP.IssueLimit, Window: cfg.OTP.IssueWindow},
				rate.ScopeResetRequest: {Max: cfg.PasswordReset.RequestLimit, Window: cfg.PasswordReset.RequestWindow},
				rate.ScopeRefresh:      {Max: cfg.Refresh.MaxAttempts, Window: cfg.Refresh.Window},
			},
		}),
		metrics: NewMetrics(cfg.Metrics),
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewZapSink(log)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		Workers:    cfg.Audit.Workers,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	// -------- CRYPTO --------
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.hasher = hasher

	dummy, err := newDummyHash(hasher)
	if err != nil {
		engine.audit.Close()
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	engine.dummyHash = dummy

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.jwt = jm

	engine.flows = engine.buildFlows()
	b.built = true

	return engine, nil
}
