package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/limiters"
)

// VerifyPassword checks email and password. Unknown emails, wrong passwords
// and inactive accounts all return ErrInvalidCredentials and are recorded as
// failed attempts; the reason is only visible in the audit trail.
func (e *Engine) VerifyPassword(ctx context.Context, email, plain string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	res := e.flows.VerifyPassword(ctx, email, plain, clientIPFromContext(ctx))

	switch res.Failure {
	case flows.PasswordFailureNone:
	case flows.PasswordFailureLocked:
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, "", "", "", ErrLoginLocked, func() map[string]string {
			return map[string]string{
				"email":       email,
				"retry_after": res.RetryAfter.String(),
			}
		})
		return nil, &LockoutError{RetryAfter: res.RetryAfter}
	case flows.PasswordFailureBackend:
		e.metricInc(MetricLoginFailure)
		err := unavailable(res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "backend"}
		})
		return nil, err
	default:
		e.metricInc(MetricLoginFailure)
		reason := passwordFailureReason(res.Failure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"email": email, "reason": reason}
		})
		if res.LockedFor > 0 {
			e.emitAudit(ctx, auditEventLoginLockoutTriggered, false, res.User.UserID, "", "", ErrLoginLocked, func() map[string]string {
				return map[string]string{"email": email, "locked_for": res.LockedFor.String()}
			})
		}
		return nil, ErrInvalidCredentials
	}

	user := res.User
	if err := e.attachRole(ctx, &user); err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.CompanyID, "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": "role"}
		})
		if errors.Is(err, ErrInvalidUser) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if res.Upgraded {
		e.metricInc(MetricPasswordHashUpgraded)
		e.emitAudit(ctx, auditEventPasswordHashUpgraded, true, user.UserID, user.CompanyID, "", nil, nil)
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginPasswordOK, true, user.UserID, user.CompanyID, "", nil, nil)

	return &Identity{
		UserID:         user.UserID,
		Email:          user.Email,
		RoleID:         user.RoleID,
		CompanyID:      user.CompanyID,
		TenantUnscoped: user.TenantUnscoped,
	}, nil
}

func passwordFailureReason(kind flows.PasswordFailureKind) string {
	switch kind {
	case flows.PasswordFailureUnknownUser:
		return "unknown_email"
	case flows.PasswordFailureMismatch:
		return "password_mismatch"
	case flows.PasswordFailureInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Login runs the password step and issues a login OTP. It never returns
// tokens; the caller completes the login with VerifyLoginOTP.
//
// An exhausted OTP budget is reported as ErrInvalidCredentials so the answer
// does not reveal that the password was right; the audit trail keeps the
// real reason.
func (e *Engine) Login(ctx context.Context, email, plain string) (*LoginResult, error) {
	id, err := e.VerifyPassword(ctx, email, plain)
	if err != nil {
		return nil, err
	}
	expiresAt, err := e.issueOTP(ctx, flows.User{
		UserID:    id.UserID,
		Email:     id.Email,
		RoleID:    id.RoleID,
		CompanyID: id.CompanyID,
		Active:    true,
	}, PurposeLogin)
	if errors.Is(err, ErrOTPRateLimited) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		OTPPending:         true,
		UserID:             id.UserID,
		ChallengeExpiresAt: expiresAt,
	}, nil
}

// IssueOTP replaces any outstanding challenge of purpose for userID and
// delivers a new code through the Notifier.
func (e *Engine) IssueOTP(ctx context.Context, userID, purpose string) (time.Time, error) {
	if !e.ready() {
		return time.Time{}, ErrEngineNotReady
	}
	if !e.knownPurpose(purpose) {
		return time.Time{}, fmt.Errorf("unknown otp purpose %q", purpose)
	}
	user, found, err := e.loadUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if !found || !user.Active {
		return time.Time{}, ErrUserNotFound
	}
	return e.issueOTP(ctx, user, purpose)
}

func (e *Engine) issueOTP(ctx context.Context, user flows.User, purpose string) (time.Time, error) {
	res := e.flows.IssueOTP(ctx, user, purpose)

	var err error
	switch res.Failure {
	case flows.OTPFailureNone:
		e.metricInc(MetricOTPIssued)
		e.emitAudit(ctx, auditEventOTPIssued, true, user.UserID, user.CompanyID, "", nil, func() map[string]string {
			return map[string]string{"purpose": purpose, "challenge_id": res.ChallengeID}
		})
		return res.ExpiresAt, nil
	case flows.OTPFailureRateLimited:
		e.metricInc(MetricOTPRateLimited)
		err = ErrOTPRateLimited
	case flows.OTPFailureDelivery:
		e.metricInc(MetricOTPDeliveryFailure)
		err = fmt.Errorf("%w: %v", ErrDeliveryFailed, res.Err)
	default:
		err = unavailable(res.Err)
	}
	e.emitAudit(ctx, auditEventOTPIssueFailure, false, user.UserID, user.CompanyID, "", err, func() map[string]string {
		return map[string]string{"purpose": purpose}
	})
	return time.Time{}, err
}

// VerifyOTP checks code against the current challenge of purpose and
// consumes it on success. A consumed, replaced or never issued challenge
// reports ErrOTPNotFound.
func (e *Engine) VerifyOTP(ctx context.Context, userID, purpose, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flows.VerifyOTP(ctx, userID, purpose, code)
	if res.Failure == flows.OTPFailureNone {
		e.metricInc(MetricOTPVerifySuccess)
		e.emitAudit(ctx, auditEventOTPVerified, true, userID, "", "", nil, func() map[string]string {
			return map[string]string{"purpose": purpose, "challenge_id": res.ChallengeID}
		})
		return nil
	}

	var err error
	switch res.Failure {
	case flows.OTPFailureExpired:
		e.metricInc(MetricOTPExpired)
		err = ErrOTPExpired
	case flows.OTPFailureMismatch:
		err = ErrOTPMismatch
	case flows.OTPFailureAttemptsExceeded:
		// The challenge is gone; the caller has to log in again.
		err = ErrOTPMismatch
	case flows.OTPFailureNotFound:
		err = ErrOTPNotFound
	default:
		err = unavailable(res.Err)
	}
	e.metricInc(MetricOTPVerifyFailure)
	e.emitAudit(ctx, auditEventOTPFailure, false, userID, "", "", err, func() map[string]string {
		return map[string]string{
			"purpose":   purpose,
			"exhausted": strconv.FormatBool(res.Failure == flows.OTPFailureAttemptsExceeded),
		}
	})
	return err
}

// VerifyLoginOTP completes a login: it consumes the login challenge, creates
// a session and returns the token pair. The user is re-read so role and
// company changes made since the password step take effect.
func (e *Engine) VerifyLoginOTP(ctx context.Context, userID, code string) (*TokenPair, error) {
	if err := e.VerifyOTP(ctx, userID, PurposeLogin, code); err != nil {
		return nil, err
	}

	user, found, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found || !user.Active {
		return nil, ErrInvalidCredentials
	}

	res := e.flows.IssueSession(ctx, user, clientMeta(ctx))
	if res.Failure != flows.IssueFailureNone {
		err := fmt.Errorf("issue session: %w", res.Err)
		if res.Failure == flows.IssueFailureCreate {
			err = unavailable(res.Err)
		}
		e.emitAudit(ctx, auditEventSessionCreated, false, user.UserID, user.CompanyID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.UserID, user.CompanyID, res.Session.SessionID, nil, nil)
	return tokenPair(res.Tokens), nil
}

// CountRecentFailures returns failed logins for an email or client address
// within window.
func (e *Engine) CountRecentFailures(ctx context.Context, subject FailureSubject, value string, window time.Duration) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	s := limiters.SubjectEmail
	if subject == FailuresByAddress {
		s = limiters.SubjectAddress
	} else {
		value = normalizeEmail(value)
	}
	n, err := e.failures.Count(ctx, s, value, window)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
