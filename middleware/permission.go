package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/tenantauth"
)

// Authorizer is the part of *tenantauth.Engine RequirePermission needs.
type Authorizer interface {
	Authorize(ctx context.Context, principal *tenantauth.AuthResult, required, resourceCompanyID string) error
}

// CompanyFunc extracts the company a request addresses. An empty result
// means the resource is not company scoped.
type CompanyFunc func(*http.Request) string

// RequirePermission rejects requests whose principal lacks required or
// addresses another tenant's company. It must run after a guard.
func RequirePermission(a Authorizer, required string, company CompanyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			var companyID string
			if company != nil {
				companyID = company(r)
			}

			err := a.Authorize(r.Context(), p, required, companyID)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, tenantauth.ErrTenantMismatch), errors.Is(err, tenantauth.ErrInsufficientPermission):
				writeError(w, http.StatusForbidden, "forbidden")
			case errors.Is(err, tenantauth.ErrTokenInvalid):
				writeError(w, http.StatusUnauthorized, "unauthorized")
			default:
				writeError(w, http.StatusServiceUnavailable, "unavailable")
			}
		})
	}
}
