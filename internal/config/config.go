// Package config loads the authd service configuration: an optional .env
// file, an optional YAML file, then AUTH_* environment overrides.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/httpapi"
	"github.com/MrEthical07/tenantauth/mailer"
	"github.com/MrEthical07/tenantauth/store/pg"
)

type Config struct {
	// dev | prod
	Env string `yaml:"env"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`

	Server struct {
		Addr              string        `yaml:"addr"`
		MetricsAddr       string        `yaml:"metrics_addr"`
		ReadTimeout       time.Duration `yaml:"read_timeout"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		TrustProxyHeaders bool          `yaml:"trust_proxy_headers"`
		RateLimit         float64       `yaml:"rate_limit"`
		RateBurst         int           `yaml:"rate_burst"`
		Cookie            struct {
			Name     string `yaml:"name"`
			Domain   string `yaml:"domain"`
			Path     string `yaml:"path"`
			Secure   bool   `yaml:"secure"`
			SameSite string `yaml:"samesite"` // strict | lax | none
		} `yaml:"cookie"`
	} `yaml:"server"`

	Database struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		AuditToDB       bool          `yaml:"audit_to_db"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	SMTP mailer.Config `yaml:"smtp"`

	Auth struct {
		// SigningKey is the HS256 secret, raw or "base64:" prefixed.
		SigningKey         string        `yaml:"signing_key"`
		Issuer             string        `yaml:"issuer"`
		AccessTTL          time.Duration `yaml:"access_ttl"`
		RefreshTTL         time.Duration `yaml:"refresh_ttl"`
		IdleTimeout        time.Duration `yaml:"idle_timeout"`
		MaxSessionLifetime time.Duration `yaml:"max_session_lifetime"`
		ValidationMode     string        `yaml:"validation_mode"` // jwt_only | strict
		PermissionCacheTTL time.Duration `yaml:"permission_cache_ttl"`

		OTP struct {
			Digits      int           `yaml:"digits"`
			TTL         time.Duration `yaml:"ttl"`
			MaxAttempts int           `yaml:"max_attempts"`
		} `yaml:"otp"`

		Lockout struct {
			Enabled   *bool         `yaml:"enabled"`
			Window    time.Duration `yaml:"window"`
			Retention time.Duration `yaml:"retention"`
			Tiers     []struct {
				Failures int           `yaml:"failures"`
				Cooldown time.Duration `yaml:"cooldown"`
			} `yaml:"tiers"`
		} `yaml:"lockout"`

		PasswordPolicy struct {
			MinLength      int   `yaml:"min_length"`
			RequireUpper   *bool `yaml:"require_upper"`
			RequireDigit   *bool `yaml:"require_digit"`
			RequireSpecial *bool `yaml:"require_special"`
		} `yaml:"password_policy"`

		ResetTTL time.Duration `yaml:"reset_ttl"`
	} `yaml:"auth"`
}

// Default returns a development-ready configuration without secrets.
func Default() *Config {
	var c Config
	c.Env = "dev"
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Server.Addr = ":8080"
	c.Server.MetricsAddr = ""
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 15 * time.Second
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Server.RateLimit = 5
	c.Server.RateBurst = 20
	c.Server.Cookie.Name = "refresh_token"
	c.Server.Cookie.Path = "/auth"
	c.Server.Cookie.Secure = true
	c.Server.Cookie.SameSite = "strict"
	c.Database.MaxOpenConns = 10
	c.Database.MaxIdleConns = 5
	c.Database.ConnMaxLifetime = 30 * time.Minute
	c.Redis.Addr = "localhost:6379"
	c.Auth.ValidationMode = "jwt_only"
	return &c
}

// LoadEnvFile loads path into the process environment. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path when given, applies AUTH_* overrides and
// validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := c.validationMode(); err != nil {
		return err
	}
	if _, err := parseSameSite(c.Server.Cookie.SameSite); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must be >= 0")
	}
	if c.IsProd() && !c.Server.Cookie.Secure {
		return errors.New("server.cookie.secure must be true in prod")
	}
	return nil
}

func (c *Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod")
}

func (c *Config) validationMode() (tenantauth.ValidationMode, error) {
	switch strings.ToLower(c.Auth.ValidationMode) {
	case "", "jwt_only":
		return tenantauth.ModeJWTOnly, nil
	case "strict":
		return tenantauth.ModeStrict, nil
	}
	return 0, fmt.Errorf("auth.validation_mode must be jwt_only or strict, got %q", c.Auth.ValidationMode)
}

// SigningKey decodes Auth.SigningKey.
func (c *Config) SigningKey() ([]byte, error) {
	raw := strings.TrimSpace(c.Auth.SigningKey)
	if raw == "" {
		return nil, errors.New("auth.signing_key is required")
	}
	if enc, ok := strings.CutPrefix(raw, "base64:"); ok {
		key, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("auth.signing_key: %w", err)
		}
		return key, nil
	}
	return []byte(raw), nil
}

// EngineConfig overlays the file and environment settings on
// tenantauth.DefaultConfig. Unset fields keep the library defaults.
func (c *Config) EngineConfig() (tenantauth.Config, error) {
	out := tenantauth.DefaultConfig()

	key, err := c.SigningKey()
	if err != nil {
		return out, err
	}
	out.JWT.PrivateKey = key
	out.JWT.Issuer = c.Auth.Issuer
	setDuration(&out.JWT.AccessTTL, c.Auth.AccessTTL)
	setDuration(&out.Session.RefreshTTL, c.Auth.RefreshTTL)
	setDuration(&out.Session.IdleTimeout, c.Auth.IdleTimeout)
	setDuration(&out.Session.MaxLifetime, c.Auth.MaxSessionLifetime)
	setDuration(&out.Permission.CacheTTL, c.Auth.PermissionCacheTTL)
	setDuration(&out.PasswordReset.TTL, c.Auth.ResetTTL)

	mode, err := c.validationMode()
	if err != nil {
		return out, err
	}
	out.ValidationMode = mode

	if c.Auth.OTP.Digits > 0 {
		out.OTP.Digits = c.Auth.OTP.Digits
	}
	setDuration(&out.OTP.TTL, c.Auth.OTP.TTL)
	if c.Auth.OTP.MaxAttempts > 0 {
		out.OTP.MaxAttempts = c.Auth.OTP.MaxAttempts
	}

	if c.Auth.Lockout.Enabled != nil {
		out.Lockout.Enabled = *c.Auth.Lockout.Enabled
	}
	setDuration(&out.Lockout.Window, c.Auth.Lockout.Window)
	setDuration(&out.Lockout.Retention, c.Auth.Lockout.Retention)
	if len(c.Auth.Lockout.Tiers) > 0 {
		out.Lockout.Tiers = out.Lockout.Tiers[:0:0]
		for _, t := range c.Auth.Lockout.Tiers {
			out.Lockout.Tiers = append(out.Lockout.Tiers, tenantauth.LockoutTier{Failures: t.Failures, Cooldown: t.Cooldown})
		}
	}

	policy := &out.Password.Policy
	if c.Auth.PasswordPolicy.MinLength > 0 {
		policy.MinLength = c.Auth.PasswordPolicy.MinLength
	}
	setBool(&policy.RequireUpper, c.Auth.PasswordPolicy.RequireUpper)
	setBool(&policy.RequireDigit, c.Auth.PasswordPolicy.RequireDigit)
	setBool(&policy.RequireSpecial, c.Auth.PasswordPolicy.RequireSpecial)

	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("auth: %w", err)
	}
	return out, nil
}

// HTTPOptions maps the server block onto httpapi.Options.
func (c *Config) HTTPOptions() httpapi.Options {
	opts := httpapi.DefaultOptions()
	opts.Cookie.Name = c.Server.Cookie.Name
	opts.Cookie.Domain = c.Server.Cookie.Domain
	opts.Cookie.Path = c.Server.Cookie.Path
	opts.Cookie.Secure = c.Server.Cookie.Secure
	opts.Cookie.SameSite, _ = parseSameSite(c.Server.Cookie.SameSite)
	if c.Auth.RefreshTTL > 0 {
		opts.Cookie.MaxAge = c.Auth.RefreshTTL
	}
	opts.RateLimit = c.Server.RateLimit
	opts.RateBurst = c.Server.RateBurst
	opts.TrustProxyHeaders = c.Server.TrustProxyHeaders
	return opts
}

func (c *Config) PoolConfig() pg.PoolConfig {
	pool := pg.DefaultPoolConfig()
	if c.Database.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.Database.MaxIdleConns
	}
	setDuration(&pool.ConnMaxLifetime, c.Database.ConnMaxLifetime)
	return pool
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "", "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("server.cookie.samesite must be strict, lax or none, got %q", v)
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// ---- env overrides ----

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("AUTH_ENV", &c.Env)
	str("AUTH_LOG_LEVEL", &c.Log.Level)
	str("AUTH_LOG_FORMAT", &c.Log.Format)

	str("AUTH_HTTP_ADDR", &c.Server.Addr)
	str("AUTH_METRICS_ADDR", &c.Server.MetricsAddr)
	boolean("AUTH_TRUST_PROXY_HEADERS", &c.Server.TrustProxyHeaders)
	float("AUTH_RATE_LIMIT", &c.Server.RateLimit)
	integer("AUTH_RATE_BURST", &c.Server.RateBurst)
	boolean("AUTH_COOKIE_SECURE", &c.Server.Cookie.Secure)
	str("AUTH_COOKIE_DOMAIN", &c.Server.Cookie.Domain)

	str("AUTH_DATABASE_DSN", &c.Database.DSN)
	boolean("AUTH_AUDIT_TO_DB", &c.Database.AuditToDB)

	str("AUTH_REDIS_ADDR", &c.Redis.Addr)
	str("AUTH_REDIS_PASSWORD", &c.Redis.Password)
	integer("AUTH_REDIS_DB", &c.Redis.DB)

	str("AUTH_SMTP_HOST", &c.SMTP.Host)
	integer("AUTH_SMTP_PORT", &c.SMTP.Port)
	str("AUTH_SMTP_USERNAME", &c.SMTP.Username)
	str("AUTH_SMTP_PASSWORD", &c.SMTP.Password)
	str("AUTH_SMTP_FROM", &c.SMTP.From)
	str("AUTH_SMTP_TLS", &c.SMTP.TLSMode)
	str("AUTH_RESET_URL", &c.SMTP.ResetURL)

	str("AUTH_SIGNING_KEY", &c.Auth.SigningKey)
	str("AUTH_ISSUER", &c.Auth.Issuer)
	duration("AUTH_ACCESS_TTL", &c.Auth.AccessTTL)
	duration("AUTH_REFRESH_TTL", &c.Auth.RefreshTTL)
	duration("AUTH_IDLE_TIMEOUT", &c.Auth.IdleTimeout)
	str("AUTH_VALIDATION_MODE", &c.Auth.ValidationMode)
	integer("AUTH_OTP_DIGITS", &c.Auth.OTP.Digits)
	duration("AUTH_OTP_TTL", &c.Auth.OTP.TTL)
	integer("AUTH_OTP_MAX_ATTEMPTS", &c.Auth.OTP.MaxAttempts)
	duration("AUTH_RESET_TTL", &c.Auth.ResetTTL)
	integer("AUTH_PASSWORD_MIN_LENGTH", &c.Auth.PasswordPolicy.MinLength)

	return errors.Join(errs...)
}
