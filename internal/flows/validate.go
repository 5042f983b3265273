package flows

import (
	"context"

	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureToken
	ValidateFailureSessionNotFound
	ValidateFailureSessionExpired
	ValidateFailureSessionIdle
	ValidateFailureBackend
)

// ValidateResult returns either claims (and the session in strict mode) or a failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Session *session.Session
}

// ValidateDeps captures jwt-only and strict validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	Strict      bool
	Touch       func(ctx context.Context, sessionID string) (*session.Session, error)
	IsNotFound  func(error) bool
	IsExpired   func(error) bool
	IsIdle      func(error) bool
}

// RunValidate verifies an access token. In strict mode the session named by
// the sid claim must still be live and owned by the token's subject; the
// check also slides its idle window.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureToken, Err: err}
	}
	if !deps.Strict {
		return ValidateResult{Claims: claims}
	}

	sess, err := deps.Touch(ctx, claims.SID)
	if err != nil {
		is := func(f func(error) bool) bool { return f != nil && f(err) }
		switch {
		case is(deps.IsExpired):
			return ValidateResult{Failure: ValidateFailureSessionExpired, Err: err}
		case is(deps.IsIdle):
			return ValidateResult{Failure: ValidateFailureSessionIdle, Err: err}
		case is(deps.IsNotFound):
			return ValidateResult{Failure: ValidateFailureSessionNotFound, Err: err}
		default:
			return ValidateResult{Failure: ValidateFailureBackend, Err: err}
		}
	}
	if sess.UserID != claims.UID {
		return ValidateResult{Failure: ValidateFailureSessionNotFound}
	}

	return ValidateResult{Claims: claims, Session: sess}
}
