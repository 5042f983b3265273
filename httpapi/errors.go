package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
)

type errorBody struct {
	Error string `json:"error"`
}

// errorMapping is checked in order; the first match wins. Expired reset
// tokens precede invalid ones because the former wraps the latter.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{tenantauth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{tenantauth.ErrOTPExpired, http.StatusGone, "otp_expired"},
	{tenantauth.ErrOTPMismatch, http.StatusUnauthorized, "invalid_otp"},
	{tenantauth.ErrOTPNotFound, http.StatusUnauthorized, "invalid_otp"},
	{tenantauth.ErrRefreshReused, http.StatusUnauthorized, "invalid_refresh_token"},
	{tenantauth.ErrRefreshExpired, http.StatusUnauthorized, "invalid_refresh_token"},
	{tenantauth.ErrRefreshNotFound, http.StatusUnauthorized, "invalid_refresh_token"},
	{tenantauth.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
	{tenantauth.ErrTokenInvalid, http.StatusUnauthorized, "unauthorized"},
	{tenantauth.ErrResetTokenExpired, http.StatusGone, "reset_token_expired"},
	{tenantauth.ErrResetTokenInvalid, http.StatusBadRequest, "invalid_reset_token"},
	{tenantauth.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{tenantauth.ErrPasswordReuse, http.StatusBadRequest, "password_reuse"},
	{tenantauth.ErrInvalidUser, http.StatusBadRequest, "invalid_user"},
	{tenantauth.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{tenantauth.ErrInsufficientPermission, http.StatusForbidden, "forbidden"},
	{tenantauth.ErrTenantMismatch, http.StatusForbidden, "forbidden"},
	{tenantauth.ErrLoginLocked, http.StatusTooManyRequests, "login_locked"},
	{tenantauth.ErrOTPRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{tenantauth.ErrRefreshRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{tenantauth.ErrResetRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{tenantauth.ErrBackendUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{tenantauth.ErrDeliveryFailed, http.StatusServiceUnavailable, "unavailable"},
	{tenantauth.ErrEngineNotReady, http.StatusServiceUnavailable, "unavailable"},
}

// statusFor maps an engine error to a status and a generic client code.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeEngineError responds for err. Details stay in the log and the audit
// trail; the body carries only the code.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	var locked *tenantauth.LockoutError
	if errors.As(err, &locked) && locked.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(locked.RetryAfter.Seconds()))))
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("code", code), zap.Error(err))
	}
	writeErrorCode(w, status, code)
}

func writeErrorCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorBody{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
