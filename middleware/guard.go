package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/tenantauth"
)

// Principal is the authenticated caller attached to the request context.
type Principal = tenantauth.AuthResult

// Validator is the part of *tenantauth.Engine the guards need.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*tenantauth.AuthResult, error)
	ValidateAccessMode(ctx context.Context, accessToken string, mode tenantauth.ValidationMode) (*tenantauth.AuthResult, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by a guard.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard validates with the engine's configured mode.
func Guard(v Validator) func(http.Handler) http.Handler {
	return guard(v, func(ctx context.Context, token string) (*Principal, error) {
		return v.ValidateAccess(ctx, token)
	})
}

// RequireJWTOnly skips the session lookup regardless of configuration.
func RequireJWTOnly(v Validator) func(http.Handler) http.Handler {
	return withMode(v, tenantauth.ModeJWTOnly)
}

// RequireStrict rejects tokens whose session was revoked or went idle.
func RequireStrict(v Validator) func(http.Handler) http.Handler {
	return withMode(v, tenantauth.ModeStrict)
}

func withMode(v Validator, mode tenantauth.ValidationMode) func(http.Handler) http.Handler {
	return guard(v, func(ctx context.Context, token string) (*Principal, error) {
		return v.ValidateAccessMode(ctx, token, mode)
	})
}

func guard(v Validator, validate func(context.Context, string) (*Principal, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeError(w, http.StatusServiceUnavailable, "unavailable")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			p, err := validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, tenantauth.ErrBackendUnavailable) || errors.Is(err, tenantauth.ErrEngineNotReady) {
					writeError(w, http.StatusServiceUnavailable, "unavailable")
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
