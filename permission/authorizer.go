package permission

// Reason explains a denial.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInsufficientPermission
	ReasonTenantMismatch
)

func (r Reason) String() string {
	switch r {
	case ReasonInsufficientPermission:
		return "insufficient_permission"
	case ReasonTenantMismatch:
		return "tenant_mismatch"
	default:
		return "none"
	}
}

// Actor is the identity an authorization check runs against.
type Actor struct {
	UserID         string
	RoleID         string
	CompanyID      string
	TenantUnscoped bool
	Permissions    Set
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Authorize allows the action only when the actor holds required and, for a
// company-scoped resource, belongs to that company. Tenant-unscoped roles
// skip the company check. An empty resourceCompanyID marks a resource that is
// not company scoped.
//
// The tenant rule is evaluated first: a scoped actor addressing another
// company is denied with ReasonTenantMismatch whatever it holds.
func Authorize(actor Actor, required, resourceCompanyID string) Decision {
	if resourceCompanyID != "" && !actor.TenantUnscoped {
		if actor.CompanyID == "" || actor.CompanyID != resourceCompanyID {
			return Decision{Reason: ReasonTenantMismatch}
		}
	}
	if required == "" || !actor.Permissions.Has(required) {
		return Decision{Reason: ReasonInsufficientPermission}
	}
	return Decision{Allowed: true}
}
