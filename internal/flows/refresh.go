package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureNextSecret
	RefreshFailureNotFound
	RefreshFailureMismatch
	RefreshFailureExpired
	RefreshFailureIdle
	RefreshFailureReuse
	RefreshFailureRotate
	RefreshFailureIssueAccess
	RefreshFailureEncode
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SessionID string
	UserID    string
	Tokens
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now          func() time.Time
	AccessTTL    time.Duration
	DecodeToken  func(string) (string, [32]byte, error)
	Budget       func(ctx context.Context, sessionID string) error
	NewSessionID func() (string, error)
	NewSecret    func() ([32]byte, error)
	HashSecret   func([32]byte) [32]byte
	EncodeToken  func(string, [32]byte) (string, error)
	SignAccess   func(jwt.Subject) (string, error)
	Rotate       func(ctx context.Context, oldID string, providedHash [32]byte, newID string, nextHash [32]byte) (*session.Session, error)
	Invalidate   func(ctx context.Context, sessionID string) error

	IsRateLimited func(error) bool
	IsNotFound    func(error) bool
	IsMismatch    func(error) bool
	IsExpired     func(error) bool
	IsIdle        func(error) bool
	IsReused      func(error) bool
	Warn          func(msg string, err error)
}

// RunRefresh exchanges a refresh token for a new pair. The rotation is a
// single atomic step in the session store, so of several concurrent callers
// presenting the same token exactly one succeeds.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}

	sessionID, providedSecret, err := deps.DecodeToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	if deps.Budget != nil {
		if err := deps.Budget(ctx, sessionID); err != nil {
			if deps.IsRateLimited != nil && deps.IsRateLimited(err) {
				return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, SessionID: sessionID}
			}
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, SessionID: sessionID}
		}
	}

	nextID, err := deps.NewSessionID()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, SessionID: sessionID}
	}
	nextSecret, err := deps.NewSecret()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureNextSecret, Err: err, SessionID: sessionID}
	}

	sess, err := deps.Rotate(ctx, sessionID, deps.HashSecret(providedSecret), nextID, deps.HashSecret(nextSecret))
	if err != nil {
		is := func(f func(error) bool) bool { return f != nil && f(err) }
		res := RefreshResult{Err: err, SessionID: sessionID}
		switch {
		case is(deps.IsReused):
			res.Failure = RefreshFailureReuse
			if sess != nil {
				res.UserID = sess.UserID
			}
		case is(deps.IsMismatch):
			res.Failure = RefreshFailureMismatch
		case is(deps.IsExpired):
			res.Failure = RefreshFailureExpired
		case is(deps.IsIdle):
			res.Failure = RefreshFailureIdle
		case is(deps.IsNotFound):
			res.Failure = RefreshFailureNotFound
		default:
			res.Failure = RefreshFailureRotate
		}
		return res
	}

	now := deps.Now()
	access, err := deps.SignAccess(subjectOf(sess))
	if err != nil {
		if ierr := deps.Invalidate(ctx, sess.SessionID); ierr != nil {
			deps.Warn("invalidate rotated session after signing failure", ierr)
		}
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, SessionID: sess.SessionID, UserID: sess.UserID}
	}
	refresh, err := deps.EncodeToken(sess.SessionID, nextSecret)
	if err != nil {
		if ierr := deps.Invalidate(ctx, sess.SessionID); ierr != nil {
			deps.Warn("invalidate rotated session after encoding failure", ierr)
		}
		return RefreshResult{Failure: RefreshFailureEncode, Err: err, SessionID: sess.SessionID, UserID: sess.UserID}
	}

	return RefreshResult{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Tokens: Tokens{
			Session:         sess,
			AccessToken:     access,
			RefreshToken:    refresh,
			AccessExpiresAt: now.Add(deps.AccessTTL),
		},
	}
}
