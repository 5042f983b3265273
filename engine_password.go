package tenantauth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MrEthical07/tenantauth/internal/flows"
)

// RequestPasswordReset issues and delivers a reset token when email belongs
// to an active user. Unknown and inactive emails return nil exactly like
// known ones; callers must respond identically in every case.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	res := e.flows.RequestPasswordReset(ctx, email, clientIPFromContext(ctx))

	var err error
	switch res.Failure {
	case flows.ResetRequestFailureNone:
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, res.UserID, "", "", nil, nil)
		return nil
	case flows.ResetRequestFailureUnknownUser:
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, res.UserID, "", "", ErrUserNotFound, func() map[string]string {
			return map[string]string{"email": email}
		})
		return nil
	case flows.ResetRequestFailureRateLimited:
		e.metricInc(MetricPasswordResetRateLimited)
		err = ErrResetRateLimited
	case flows.ResetRequestFailureDelivery:
		err = fmt.Errorf("%w: %v", ErrDeliveryFailed, res.Err)
	default:
		err = unavailable(res.Err)
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, false, res.UserID, "", "", err, func() map[string]string {
		return map[string]string{"email": email}
	})
	return err
}

// ResetPassword consumes a reset token and sets newPassword. The policy is
// checked first so a rejected password leaves the token usable. On success
// every session of the user is revoked.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flows.ResetPassword(ctx, token, newPassword)

	var err error
	switch res.Failure {
	case flows.ResetFailureNone:
		e.metricInc(MetricPasswordResetConfirmSuccess)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, true, res.UserID, "", "", nil, func() map[string]string {
			return map[string]string{"revoked_sessions": strconv.Itoa(res.RevokedSessions)}
		})
		return nil
	case flows.ResetFailureWeakPassword:
		err = fmt.Errorf("%w: %v", ErrWeakPassword, res.Err)
	case flows.ResetFailureInvalid:
		err = ErrResetTokenInvalid
	case flows.ResetFailureExpired:
		err = ErrResetTokenExpired
	default:
		err = unavailable(res.Err)
	}
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, res.UserID, "", "", err, nil)
	return err
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one, then revokes all of their sessions.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flows.ChangePassword(ctx, userID, oldPassword, newPassword)

	var err error
	switch res.Failure {
	case flows.ChangeFailureNone:
		e.metricInc(MetricPasswordChangeSuccess)
		e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, "", "", nil, func() map[string]string {
			return map[string]string{"revoked_sessions": strconv.Itoa(res.RevokedSessions)}
		})
		return nil
	case flows.ChangeFailureUnknownUser:
		err = ErrUserNotFound
	case flows.ChangeFailureInvalidOld:
		e.metricInc(MetricPasswordChangeInvalidOld)
		err = ErrInvalidCredentials
	case flows.ChangeFailureReuse:
		e.metricInc(MetricPasswordChangeReuseRejected)
		err = ErrPasswordReuse
	case flows.ChangeFailureWeakPassword:
		err = fmt.Errorf("%w: %v", ErrWeakPassword, res.Err)
	default:
		err = unavailable(res.Err)
	}
	e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", "", err, nil)
	return err
}
