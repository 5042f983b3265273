package flows

import (
	"context"

	"github.com/MrEthical07/tenantauth/session"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Get        func(ctx context.Context, sessionID string) (*session.Session, error)
	Invalidate func(ctx context.Context, sessionID string) error
	IsNotFound func(error) bool
}

// LogoutResult reports whether a session was actually removed.
type LogoutResult struct {
	Err         error
	Invalidated bool
	// Foreign is set when the session exists but belongs to another user.
	Foreign bool
}

// RunLogout removes sessionID if it belongs to userID. Missing sessions are
// not an error so logout stays idempotent; foreign sessions are left alone.
func RunLogout(ctx context.Context, userID, sessionID string, deps LogoutDeps) LogoutResult {
	if sessionID == "" {
		return LogoutResult{}
	}
	sess, err := deps.Get(ctx, sessionID)
	if err != nil {
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			return LogoutResult{}
		}
		return LogoutResult{Err: err}
	}
	if sess.UserID != userID {
		return LogoutResult{Foreign: true}
	}
	if err := deps.Invalidate(ctx, sessionID); err != nil {
		return LogoutResult{Err: err}
	}
	return LogoutResult{Invalidated: true}
}
