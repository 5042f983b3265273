// Package middleware adapts Engine access-token validation and authorization
// to net/http.
//
// # Guards
//
//   - [Guard] validates with the engine's configured mode.
//   - [RequireJWTOnly] checks signature and expiry only, no Redis call.
//   - [RequireStrict] also requires the session behind the token to be live.
//
// Each guard reads the Authorization header and stores the resulting
// [Principal] in the request context.
//
// [RequirePermission] runs after a guard and enforces a permission plus the
// tenant rule against the company the route addresses.
//
// This package makes no decisions of its own; it maps Engine results to
// status codes.
package middleware
