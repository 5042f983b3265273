package tenantauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/password"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	OTP            OTPConfig
	Password       PasswordConfig
	PasswordReset  PasswordResetConfig
	Lockout        LockoutConfig
	Refresh        RefreshConfig
	Permission     PermissionConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session registry. RefreshTTL is the lifetime
// granted to each refresh token; MaxLifetime caps a whole rotation chain.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
	IdleTimeout time.Duration
	MaxLifetime time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

type OTPConfig struct {
	RedisPrefix string
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	// ExpiredGrace keeps expired challenges around so late codes report ErrOTPExpired.
	ExpiredGrace time.Duration
	// IssueLimit bounds how many challenges one user can request per IssueWindow.
	IssueLimit  int
	IssueWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory           uint32 // in KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
	Policy           password.Policy
}

type PasswordResetConfig struct {
	RedisPrefix  string
	TTL          time.Duration
	MaxAttempts  int
	RequestLimit int
	// RequestWindow applies to both the per-email and per-address request budget.
	RequestWindow time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// LockoutTier escalates once Failures failed logins fall inside the window.
type LockoutTier struct {
	Failures int
	Cooldown time.Duration
}

// LockoutConfig controls progressive lockout. Failed logins are recorded
// whether or not lockout is enabled; Retention is how long they stay
// countable through CountRecentFailures.
type LockoutConfig struct {
	Enabled     bool
	RedisPrefix string
	Window      time.Duration
	Retention   time.Duration
	Tiers       []LockoutTier
}

// RefreshConfig throttles refresh attempts per session.
type RefreshConfig struct {
	RateLimitPrefix string
	MaxAttempts     int
	Window          time.Duration
}

type PermissionConfig struct {
	// CacheTTL enables the role permission cache when positive.
	CacheTTL time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	Workers    int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ValidationMode selects how ValidateAccess treats the session behind a token.
type ValidationMode int

const (
	// ModeJWTOnly checks signature and expiry only.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict additionally touches the session, so revoked or idle
	// sessions are rejected before the access token expires.
	ModeStrict
)

// DefaultConfig returns production defaults. The signing key must still be set.
func DefaultConfig() Config {
	policy := password.DefaultPolicy()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ts",
			RefreshTTL:  7 * 24 * time.Hour,
			IdleTimeout: 30 * time.Minute,
			MaxLifetime: 30 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			RedisPrefix:  "totp",
			Digits:       6,
			TTL:          5 * time.Minute,
			MaxAttempts:  5,
			ExpiredGrace: 10 * time.Minute,
			IssueLimit:   5,
			IssueWindow:  15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			UpgradeOnLogin:   true,
			Policy:           policy,
		},
		PasswordReset: PasswordResetConfig{
			RedisPrefix:   "tpr",
			TTL:           30 * time.Minute,
			MaxAttempts:   5,
			RequestLimit:  3,
			RequestWindow: time.Hour,
		},
		Lockout: LockoutConfig{
			Enabled:     true,
			RedisPrefix: "tfl",
			Window:      15 * time.Minute,
			Retention:   24 * time.Hour,
			Tiers: []LockoutTier{
				{Failures: 5, Cooldown: 30 * time.Second},
				{Failures: 10, Cooldown: 5 * time.Minute},
				{Failures: 20, Cooldown: time.Hour},
			},
		},
		Refresh: RefreshConfig{
			RateLimitPrefix: "trl",
			MaxAttempts:     30,
			Window:          time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			Workers:    1,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		ValidationMode: ModeJWTOnly,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Lockout.Tiers = append([]LockoutTier(nil), cfg.Lockout.Tiers...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL > time.Hour {
		return errors.New("JWT AccessTTL must be <= 1h")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.MaxLifetime != 0 && c.Session.MaxLifetime < c.Session.RefreshTTL {
		return errors.New("Session MaxLifetime must be 0 or >= RefreshTTL")
	}

	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 || c.OTP.TTL > 15*time.Minute {
		return errors.New("OTP TTL must be in (0, 15m]")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.ExpiredGrace < 0 {
		return errors.New("OTP ExpiredGrace must be >= 0")
	}
	if c.OTP.IssueLimit > 0 && c.OTP.IssueWindow <= 0 {
		return errors.New("OTP IssueWindow must be > 0 when IssueLimit is set")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}

	// Password reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if c.PasswordReset.MaxAttempts <= 0 {
		return errors.New("PasswordReset MaxAttempts must be > 0")
	}
	if c.PasswordReset.RequestLimit > 0 && c.PasswordReset.RequestWindow <= 0 {
		return errors.New("PasswordReset RequestWindow must be > 0 when RequestLimit is set")
	}

	// Lockout
	if c.Lockout.Retention > 0 && c.Lockout.Retention < c.Lockout.Window {
		return errors.New("Lockout Retention must not be shorter than Window")
	}
	if c.Lockout.Enabled {
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be > 0")
		}
		if len(c.Lockout.Tiers) == 0 {
			return errors.New("Lockout requires at least one tier")
		}
		for _, t := range c.Lockout.Tiers {
			if t.Failures <= 0 || t.Cooldown <= 0 {
				return errors.New("Lockout tiers need Failures > 0 and Cooldown > 0")
			}
		}
	}

	// Refresh
	if c.Refresh.MaxAttempts > 0 && c.Refresh.Window <= 0 {
		return errors.New("Refresh Window must be > 0 when MaxAttempts is set")
	}

	if c.Permission.CacheTTL < 0 {
		return errors.New("Permission CacheTTL must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	switch c.ValidationMode {
	case ModeJWTOnly, ModeStrict:
	default:
		return errors.New("invalid ValidationMode")
	}

	return nil
}
