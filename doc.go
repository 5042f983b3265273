// Package tenantauth is the authentication core of a multi-tenant service:
// password login gated by a one-time code, JWT access tokens, rotating opaque
// refresh tokens backed by a Redis session registry, and role-based
// authorization with tenant isolation.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Login
//
// [Engine.Login] verifies the password and delivers a login OTP through the
// configured [Notifier]; it never returns tokens. [Engine.VerifyLoginOTP]
// consumes the code, records a session and returns a [TokenPair].
// Failed password checks feed a tiered lockout per email and per client
// address (see [LockoutConfig]).
//
// # Refresh
//
// Refresh tokens are single use. [Engine.Refresh] replaces the session
// atomically; presenting a token that was already exchanged is treated as
// theft and revokes every session of its owner.
//
// # Authorization
//
// [Engine.ValidateAccess] returns the request principal with the permissions
// of its role. [Engine.Authorize] denies unless the permission is held and,
// for company-scoped resources, the principal belongs to the company or
// holds a tenant-unscoped role.
//
// # Architecture boundaries
//
// tenantauth is the public surface. Flow orchestration, Redis stores, rate
// budgets and audit dispatch live under internal/ and are never exported.
// Storage of users, roles and permission links is behind [CredentialStore];
// store/pg provides the Postgres implementation.
package tenantauth
