package tenantauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/password"
)

const (
	auditEventLoginPasswordOK       = "login_password_ok"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventLoginLockoutTriggered = "login_lockout_triggered"
	auditEventOTPIssued             = "otp_issued"
	auditEventOTPIssueFailure       = "otp_issue_failure"
	auditEventOTPVerified           = "otp_verified"
	auditEventOTPFailure            = "otp_failure"
	auditEventSessionCreated        = "session_created"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutForeign         = "logout_foreign_session"
	auditEventLogoutAll             = "logout_all"
	auditEventAuthorizationDenied   = "authorization_denied"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordHashUpgraded  = "password_hash_upgraded"
	auditEventUserCreated           = "user_created"
	auditEventUserCreateFailure     = "user_create_failure"
	auditEventUserDeleted           = "user_deleted"
	auditEventUserStatusChanged     = "user_status_changed"
)

// AuditErrorCode is the stable, client-safe classification stored in
// AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrLocked             AuditErrorCode = "locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrWeakPassword       AuditErrorCode = "weak_password"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrOTPMismatch        AuditErrorCode = "otp_mismatch"
	auditErrOTPNotFound        AuditErrorCode = "otp_not_found"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrRefreshExpired     AuditErrorCode = "refresh_expired"
	auditErrRefreshNotFound    AuditErrorCode = "refresh_not_found"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInsufficientPerm   AuditErrorCode = "insufficient_permission"
	auditErrTenantMismatch     AuditErrorCode = "tenant_mismatch"
	auditErrResetTokenExpired  AuditErrorCode = "reset_token_expired"
	auditErrResetTokenInvalid  AuditErrorCode = "reset_token_invalid"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidUser        AuditErrorCode = "invalid_user"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	companyID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		CompanyID: companyID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginLocked):
		return auditErrLocked
	case errors.Is(err, ErrOTPRateLimited),
		errors.Is(err, ErrRefreshRateLimited),
		errors.Is(err, ErrResetRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrWeakPassword), errors.Is(err, password.ErrPolicyViolation):
		return auditErrWeakPassword
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPMismatch):
		return auditErrOTPMismatch
	case errors.Is(err, ErrOTPNotFound):
		return auditErrOTPNotFound
	case errors.Is(err, ErrRefreshReused):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrInsufficientPermission):
		return auditErrInsufficientPerm
	case errors.Is(err, ErrTenantMismatch):
		return auditErrTenantMismatch
	// ErrResetTokenExpired wraps ErrResetTokenInvalid, so it goes first.
	case errors.Is(err, ErrResetTokenExpired):
		return auditErrResetTokenExpired
	case errors.Is(err, ErrResetTokenInvalid):
		return auditErrResetTokenInvalid
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidUser), errors.Is(err, ErrRoleNotFound):
		return auditErrInvalidUser
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
