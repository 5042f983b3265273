// Package jwt issues and verifies the short-lived access tokens that carry a
// user's id, role, company and session id. HS256 and Ed25519 are supported;
// validation checks signature and expiry plus issuer/audience when configured.
package jwt
