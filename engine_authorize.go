package tenantauth

import (
	"context"

	"github.com/MrEthical07/tenantauth/permission"
)

// ResolvePermissions returns the sorted, de-duplicated permission names
// linked to roleID. A role without links yields an empty slice.
func (e *Engine) ResolvePermissions(ctx context.Context, roleID string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	set, err := e.resolver.Resolve(ctx, roleID)
	if err != nil {
		return nil, unavailable(err)
	}
	return set.Names(), nil
}

// InvalidateRolePermissions drops the cached permissions of roleID after its
// links change. It is a no-op when caching is disabled.
func (e *Engine) InvalidateRolePermissions(roleID string) {
	if e == nil || e.resolver == nil {
		return
	}
	e.resolver.InvalidateRole(roleID)
}

// Authorize allows the action only if the principal holds required and,
// when resourceCompanyID is set, belongs to that company or holds a
// tenant-unscoped role. A foreign company is reported as ErrTenantMismatch
// before permissions are looked at; otherwise a missing grant is
// ErrInsufficientPermission.
func (e *Engine) Authorize(ctx context.Context, principal *AuthResult, required, resourceCompanyID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if principal == nil {
		return ErrTokenInvalid
	}

	d := permission.Authorize(permission.Actor{
		UserID:         principal.UserID,
		RoleID:         principal.RoleID,
		CompanyID:      principal.CompanyID,
		TenantUnscoped: principal.TenantUnscoped,
		Permissions:    permission.NewSet(principal.Permissions...),
	}, required, resourceCompanyID)
	if d.Allowed {
		e.metricInc(MetricAuthorizeAllowed)
		return nil
	}

	err := ErrInsufficientPermission
	if d.Reason == permission.ReasonTenantMismatch {
		e.metricInc(MetricTenantMismatch)
		err = ErrTenantMismatch
	}
	e.metricInc(MetricAuthorizeDenied)
	e.emitAudit(ctx, auditEventAuthorizationDenied, false, principal.UserID, principal.CompanyID, principal.SessionID, err, func() map[string]string {
		return map[string]string{
			"permission":       required,
			"resource_company": resourceCompanyID,
			"reason":           d.Reason.String(),
		}
	})
	return err
}
