// Package internal holds helpers private to tenantauth: opaque token and OTP
// generation plus the sub-packages used by the Engine.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: dependency-injected orchestration for login, OTP, refresh and reset
//   - limiters: failed-login windows and progressive lockout
//   - rate: Redis fixed-window counters for forgot-password and OTP issuance
//   - stores: Redis-backed OTP challenge and password reset stores
package internal
