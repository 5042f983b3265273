// Package flows contains the orchestration of every Engine operation as plain
// functions over typed dependency structs.
//
// A flow (RunVerifyPassword, RunIssueOTP, RunRefresh, ...) coordinates the
// session registry, OTP and reset stores, lockout tracker and token signer
// through function fields, and returns a result carrying a failure kind
// instead of a public error. The Engine owns every resource, maps failure
// kinds to its sentinel errors and decides which audit events and metrics
// to emit.
//
// Flows hold no state between calls and never import the root package.
package flows
