package security

import (
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth"
)

// Minimum argon2id memory from the OWASP password storage cheat sheet.
const minArgonMemoryKiB = 19 * 1024

type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
	SeverityHigh Severity = "high"
)

type Finding struct {
	Severity Severity
	Message  string
}

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

type Report struct {
	ProductionMode   bool
	SigningAlgorithm string
	StrictMode       bool
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	IdleTimeout      time.Duration
	MaxLifetime      time.Duration
	Argon2           PasswordReport
	OTPDigits        int
	OTPMaxAttempts   int
	LockoutActive    bool
	RefreshThrottled bool
	AuditEnabled     bool
	Findings         []Finding
}

// BuildReport inspects cfg. Findings escalate to SeverityHigh only when
// production is set.
func BuildReport(cfg tenantauth.Config, production bool) Report {
	r := Report{
		ProductionMode:   production,
		SigningAlgorithm: cfg.JWT.SigningMethod,
		StrictMode:       cfg.ValidationMode == tenantauth.ModeStrict,
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.Session.RefreshTTL,
		IdleTimeout:      cfg.Session.IdleTimeout,
		MaxLifetime:      cfg.Session.MaxLifetime,
		Argon2: PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
			MinLength:   cfg.Password.Policy.MinLength,
		},
		OTPDigits:        cfg.OTP.Digits,
		OTPMaxAttempts:   cfg.OTP.MaxAttempts,
		LockoutActive:    cfg.Lockout.Enabled && len(cfg.Lockout.Tiers) > 0,
		RefreshThrottled: cfg.Refresh.MaxAttempts > 0 && cfg.Refresh.Window > 0,
		AuditEnabled:     cfg.Audit.Enabled,
	}

	escalate := SeverityWarn
	if production {
		escalate = SeverityHigh
	}
	add := func(sev Severity, format string, args ...any) {
		r.Findings = append(r.Findings, Finding{Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if r.Argon2.Memory < minArgonMemoryKiB {
		add(escalate, "argon2id memory %d KiB is below %d KiB", r.Argon2.Memory, minArgonMemoryKiB)
	}
	if r.Argon2.MinLength < 8 {
		add(escalate, "password policy allows %d character passwords", r.Argon2.MinLength)
	}
	if !r.LockoutActive {
		add(escalate, "login lockout is disabled")
	}
	if r.OTPDigits < 6 {
		add(escalate, "otp codes have only %d digits", r.OTPDigits)
	}
	if r.AccessTTL > 15*time.Minute {
		add(SeverityWarn, "access tokens live %s; revocation waits that long in jwt_only mode", r.AccessTTL)
	}
	if !r.StrictMode {
		add(SeverityInfo, "jwt_only validation: logout takes effect when the access token expires")
	}
	if r.IdleTimeout <= 0 {
		add(SeverityWarn, "sessions have no idle timeout")
	}
	if r.MaxLifetime <= 0 {
		add(SeverityWarn, "refresh families have no absolute lifetime")
	}
	if !r.RefreshThrottled {
		add(SeverityWarn, "refresh is not rate limited")
	}
	if !r.AuditEnabled {
		add(escalate, "audit events are disabled")
	}
	return r
}

// Failed reports whether any finding is SeverityHigh.
func (r Report) Failed() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
