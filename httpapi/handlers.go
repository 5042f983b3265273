package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	OTPPending bool      `json:"otpPending"`
	UserID     string    `json:"userId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type verifyOTPRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	SessionID        string    `json:"sessionId"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	SessionID string `json:"sessionId"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"roleId"`
}

type userResponse struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	RoleID    string    `json:"roleId"`
	CompanyID string    `json:"companyId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type principalResponse struct {
	UserID         string   `json:"userId"`
	RoleID         string   `json:"roleId"`
	CompanyID      string   `json:"companyId,omitempty"`
	TenantUnscoped bool     `json:"tenantUnscoped"`
	SessionID      string   `json:"sessionId"`
	Permissions    []string `json:"permissions"`
}

type sessionResponse struct {
	SessionID  string    `json:"sessionId"`
	Current    bool      `json:"current"`
	UserAgent  string    `json:"userAgent,omitempty"`
	ClientIP   string    `json:"clientIp,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// decode reads a JSON body. It writes the 400 itself and reports false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

// decodeOptional is decode for routes whose body may be empty.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request")
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		OTPPending: res.OTPPending,
		UserID:     res.UserID,
		ExpiresAt:  res.ChallengeExpiresAt,
	})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Code == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request")
		return
	}

	pair, err := s.engine.VerifyLoginOTP(r.Context(), req.UserID, req.Code)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeTokens(w, pair)
}

// handleRefresh takes the token from the cookie and falls back to the body.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(s.opts.Cookie.Name); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		if !s.decodeOptional(w, r, &req) {
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		writeErrorCode(w, http.StatusUnauthorized, "invalid_refresh_token")
		return
	}

	pair, err := s.engine.Refresh(r.Context(), token)
	if err != nil {
		if status, _ := statusFor(err); status == http.StatusUnauthorized {
			s.clearRefreshCookie(w)
		}
		s.writeEngineError(w, r, err)
		return
	}
	s.writeTokens(w, pair)
}

// handleForgotPassword answers 202 whatever happens so the response never
// reveals whether the email is registered.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Email != "" {
		if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
			s.log.Warn("password reset request failed", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	perms := p.Permissions
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, principalResponse{
		UserID:         p.UserID,
		RoleID:         p.RoleID,
		CompanyID:      p.CompanyID,
		TenantUnscoped: p.TenantUnscoped,
		SessionID:      p.SessionID,
		Permissions:    perms,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	list, err := s.engine.ListSessions(r.Context(), p.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionResponse{
			SessionID:  sess.SessionID,
			Current:    sess.SessionID == p.SessionID,
			UserAgent:  sess.UserAgent,
			ClientIP:   sess.ClientIP,
			CreatedAt:  sess.CreatedAt.UTC(),
			LastSeenAt: sess.LastSeenAt.UTC(),
			ExpiresAt:  sess.ExpiresAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// handleLogout ends the named session, or the caller's own when the body
// names none. Sessions of other users are left alone; the response is 204
// either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req logoutRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = p.SessionID
	}

	if err := s.engine.Logout(r.Context(), p.UserID, sessionID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if sessionID == p.SessionID {
		s.clearRefreshCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	n, err := s.engine.LogoutAll(r.Context(), p.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeErrorCode(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.engine.ChangePassword(r.Context(), p.UserID, req.OldPassword, req.NewPassword); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateUser adds a user to the company in the path. Tenant-unscoped
// roles cannot be granted here; the engine rejects them with invalid_user.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.engine.CreateUser(r.Context(), tenantauth.NewUser{
		Email:     req.Email,
		Password:  req.Password,
		RoleID:    req.RoleID,
		CompanyID: companyParam(r),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		UserID:    rec.UserID,
		Email:     rec.Email,
		RoleID:    rec.RoleID,
		CompanyID: rec.CompanyID,
		CreatedAt: rec.CreatedAt.UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	h := s.engine.Health(ctx)
	checks := map[string]string{"redis": "ok"}
	healthy := h.RedisOK
	if !h.RedisOK {
		checks["redis"] = "down"
	}
	for name, check := range s.opts.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = "down"
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":        status,
		"checks":        checks,
		"audit_dropped": h.AuditDropped,
	})
}

func (s *Server) writeTokens(w http.ResponseWriter, pair *tenantauth.TokenPair) {
	s.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		SessionID:        pair.SessionID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if expires.IsZero() {
		maxAge = int(s.opts.Cookie.MaxAge.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.Cookie.Name,
		Value:    token,
		Path:     s.opts.Cookie.Path,
		Domain:   s.opts.Cookie.Domain,
		MaxAge:   maxAge,
		Secure:   s.opts.Cookie.Secure,
		HttpOnly: true,
		SameSite: s.opts.Cookie.SameSite,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.Cookie.Name,
		Value:    "",
		Path:     s.opts.Cookie.Path,
		Domain:   s.opts.Cookie.Domain,
		MaxAge:   -1,
		Secure:   s.opts.Cookie.Secure,
		HttpOnly: true,
		SameSite: s.opts.Cookie.SameSite,
	})
}
