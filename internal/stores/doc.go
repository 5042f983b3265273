// Package stores holds the short-lived Redis records behind OTP challenges and
// password reset tokens. Only digests of codes and secrets are persisted.
package stores
