package tenantauth

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with key",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "hs256 short key",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "ed25519 missing public key",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
				c.JWT.PublicKey = nil
			},
			wantValid: false,
		},
		{
			name: "unknown signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "access ttl above one hour",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 2 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.Session.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "max lifetime below refresh ttl",
			mutate: func(c *Config) {
				c.Session.MaxLifetime = time.Hour
			},
			wantValid: false,
		},
		{
			name: "idle timeout disabled",
			mutate: func(c *Config) {
				c.Session.IdleTimeout = 0
			},
			wantValid: true,
		},
		{
			name: "otp digits too few",
			mutate: func(c *Config) {
				c.OTP.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "otp ttl too long",
			mutate: func(c *Config) {
				c.OTP.TTL = time.Hour
			},
			wantValid: false,
		},
		{
			name: "otp issue limit without window",
			mutate: func(c *Config) {
				c.OTP.IssueWindow = 0
			},
			wantValid: false,
		},
		{
			name: "argon2 memory too low",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "policy min length below eight",
			mutate: func(c *Config) {
				c.Password.Policy.MinLength = 6
			},
			wantValid: false,
		},
		{
			name: "lockout without tiers",
			mutate: func(c *Config) {
				c.Lockout.Tiers = nil
			},
			wantValid: false,
		},
		{
			name: "lockout disabled without tiers",
			mutate: func(c *Config) {
				c.Lockout.Enabled = false
				c.Lockout.Tiers = nil
			},
			wantValid: true,
		},
		{
			name: "lockout retention shorter than window",
			mutate: func(c *Config) {
				c.Lockout.Retention = time.Minute
			},
			wantValid: false,
		},
		{
			name: "lockout tier zero cooldown",
			mutate: func(c *Config) {
				c.Lockout.Tiers = []LockoutTier{{Failures: 3}}
			},
			wantValid: false,
		},
		{
			name: "reset request limit without window",
			mutate: func(c *Config) {
				c.PasswordReset.RequestWindow = 0
			},
			wantValid: false,
		},
		{
			name: "validation mode strict",
			mutate: func(c *Config) {
				c.ValidationMode = ModeStrict
			},
			wantValid: true,
		},
		{
			name: "validation mode invalid",
			mutate: func(c *Config) {
				c.ValidationMode = ValidationMode(77)
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "negative permission cache ttl",
			mutate: func(c *Config) {
				c.Permission.CacheTTL = -time.Second
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestCloneConfigDoesNotAlias(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] = 'z'
	clone.Lockout.Tiers[0].Failures = 99

	if cfg.JWT.PrivateKey[0] != 'k' {
		t.Fatalf("private key aliased")
	}
	if cfg.Lockout.Tiers[0].Failures == 99 {
		t.Fatalf("lockout tiers aliased")
	}
}
