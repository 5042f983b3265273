package tenantauth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/tenantauth/internal/flows"
)

// Refresh exchanges a refresh token for a new pair and retires the old one.
// Presenting a token that was already rotated away revokes every session of
// its owner and returns ErrRefreshReused.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res := e.flows.Refresh(ctx, refreshToken)

	var err error
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.Session.CompanyID, res.SessionID, nil, nil)
		return tokenPair(res.Tokens), nil
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, "", res.SessionID, ErrRefreshReused, nil)
		return nil, ErrRefreshReused
	case flows.RefreshFailureDecode, flows.RefreshFailureNotFound, flows.RefreshFailureMismatch:
		err = ErrRefreshNotFound
	case flows.RefreshFailureRateLimited:
		err = ErrRefreshRateLimited
	case flows.RefreshFailureExpired:
		err = ErrRefreshExpired
	case flows.RefreshFailureIdle:
		e.metricInc(MetricSessionIdleExpired)
		err = ErrSessionExpired
	case flows.RefreshFailureRotate:
		err = unavailable(res.Err)
	default:
		err = fmt.Errorf("refresh: %w", res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.SessionID, err, nil)
	return nil, err
}

// ValidateAccess verifies an access token and returns the request principal
// with its resolved permissions. In ModeStrict the session behind the token
// must still be live; the check extends its idle window.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.ValidateAccessMode(ctx, accessToken, e.config.ValidationMode)
}

// ValidateAccessMode is ValidateAccess with the validation mode chosen by the
// caller, so individual routes can demand strict checks.
func (e *Engine) ValidateAccessMode(ctx context.Context, accessToken string, mode ValidationMode) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	res := e.flows.Validate(ctx, accessToken, mode == ModeStrict)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureToken, flows.ValidateFailureSessionNotFound:
		return nil, ErrTokenInvalid
	case flows.ValidateFailureSessionExpired:
		return nil, ErrSessionExpired
	case flows.ValidateFailureSessionIdle:
		e.metricInc(MetricSessionIdleExpired)
		return nil, ErrSessionExpired
	default:
		return nil, unavailable(res.Err)
	}

	sub := res.Claims.Subject()
	perms, err := e.resolver.Resolve(ctx, sub.RoleID)
	if err != nil {
		return nil, unavailable(err)
	}
	return &AuthResult{
		UserID:         sub.UserID,
		RoleID:         sub.RoleID,
		CompanyID:      sub.CompanyID,
		TenantUnscoped: sub.TenantUnscoped,
		SessionID:      sub.SessionID,
		Permissions:    perms.Names(),
	}, nil
}

// Logout removes sessionID when it belongs to userID. Unknown sessions and
// sessions of other users are ignored, so the call is idempotent.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flows.Logout(ctx, userID, sessionID)
	switch {
	case res.Err != nil:
		err := unavailable(res.Err)
		e.emitAudit(ctx, auditEventLogoutSession, false, userID, "", sessionID, err, nil)
		return err
	case res.Foreign:
		e.emitAudit(ctx, auditEventLogoutForeign, false, userID, "", sessionID, nil, nil)
	case res.Invalidated:
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventLogoutSession, true, userID, "", sessionID, nil, nil)
	}
	return nil
}

// LogoutAll revokes every session of userID and returns how many were removed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.InvalidateAllForUser(ctx, userID)
	if err != nil {
		err = unavailable(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", "", err, nil)
		return 0, err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}

// ListSessions returns the live sessions of userID.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	list, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, SessionInfo{
			SessionID:  s.SessionID,
			UserAgent:  s.UserAgent,
			ClientIP:   s.ClientIP,
			CreatedAt:  time.Unix(s.CreatedAt, 0),
			LastSeenAt: time.Unix(s.LastSeenAt, 0),
			ExpiresAt:  time.Unix(s.ExpiresAt, 0),
		})
	}
	return out, nil
}
