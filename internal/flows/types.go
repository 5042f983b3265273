package flows

// User is the flow-local view of an account joined with its role.
type User struct {
	UserID         string
	Email          string
	RoleID         string
	CompanyID      string
	TenantUnscoped bool
	PasswordHash   string
	Active         bool
}

// ClientMeta is request metadata recorded on sessions and audit events.
type ClientMeta struct {
	IP        string
	UserAgent string
}
