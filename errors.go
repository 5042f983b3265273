package tenantauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password and inactive users alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakPassword is returned before hashing when a new password fails the policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	ErrLoginLocked   = errors.New("login temporarily locked")

	ErrOTPExpired     = errors.New("otp expired")
	ErrOTPMismatch    = errors.New("otp mismatch")
	ErrOTPNotFound    = errors.New("otp not found")
	ErrOTPRateLimited = errors.New("otp issuance rate limited")

	ErrRefreshReused   = errors.New("refresh token reuse detected")
	ErrRefreshExpired  = errors.New("refresh token expired")
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrTokenInvalid    = errors.New("invalid token")
	// ErrRefreshRateLimited is returned when one session refreshes too often.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrTenantMismatch         = errors.New("tenant mismatch")

	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrResetTokenExpired wraps ErrResetTokenInvalid so callers matching on
	// the broader error still see it.
	ErrResetTokenExpired = fmt.Errorf("reset token expired: %w", ErrResetTokenInvalid)
	ErrResetRateLimited  = errors.New("password reset rate limited")

	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
	ErrEmailTaken   = errors.New("email already registered")
	// ErrInvalidUser is returned when a user's role and company disagree.
	ErrInvalidUser = errors.New("invalid user")

	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrDeliveryFailed     = errors.New("delivery failed")
	ErrEngineNotReady     = errors.New("engine not initialized")
)

// LockoutError is returned while a login lockout is in force. It matches
// ErrLoginLocked with errors.Is.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrLoginLocked, e.RetryAfter.Round(time.Second))
}

func (e *LockoutError) Unwrap() error { return ErrLoginLocked }

// unavailable tags a storage failure with ErrBackendUnavailable once.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
