package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/session"
)

// IssueFailureKind classifies token issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSecret
	IssueFailureCreate
	IssueFailureSign
	IssueFailureEncode
)

// Tokens is a freshly minted access/refresh pair.
type Tokens struct {
	Session         *session.Session
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// IssueResult carries the tokens or a failure classification.
type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Tokens
}

// SessionDeps wires session creation and token minting.
type SessionDeps struct {
	Now          func() time.Time
	AccessTTL    time.Duration
	NewSessionID func() (string, error)
	NewSecret    func() ([32]byte, error)
	HashSecret   func([32]byte) [32]byte
	EncodeToken  func(id string, secret [32]byte) (string, error)
	SignAccess   func(jwt.Subject) (string, error)
	Create       func(ctx context.Context, sess *session.Session) error
	Invalidate   func(ctx context.Context, sessionID string) error
	Warn         func(msg string, err error)
}

func subjectOf(sess *session.Session) jwt.Subject {
	return jwt.Subject{
		UserID:         sess.UserID,
		RoleID:         sess.RoleID,
		CompanyID:      sess.CompanyID,
		TenantUnscoped: sess.TenantUnscoped,
		SessionID:      sess.SessionID,
	}
}

// RunIssueSession records a new session for user and returns its tokens.
// The session is removed again if the access token cannot be produced.
func RunIssueSession(ctx context.Context, user User, meta ClientMeta, deps SessionDeps) IssueResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}

	sessionID, err := deps.NewSessionID()
	if err != nil {
		return IssueResult{Failure: IssueFailureSecret, Err: err}
	}
	secret, err := deps.NewSecret()
	if err != nil {
		return IssueResult{Failure: IssueFailureSecret, Err: err}
	}

	sess := &session.Session{
		SessionID:      sessionID,
		UserID:         user.UserID,
		RoleID:         user.RoleID,
		CompanyID:      user.CompanyID,
		TenantUnscoped: user.TenantUnscoped,
		RefreshHash:    deps.HashSecret(secret),
		UserAgent:      meta.UserAgent,
		ClientIP:       meta.IP,
	}
	if err := deps.Create(ctx, sess); err != nil {
		return IssueResult{Failure: IssueFailureCreate, Err: err}
	}

	now := deps.Now()
	access, err := deps.SignAccess(subjectOf(sess))
	if err != nil {
		if ierr := deps.Invalidate(ctx, sessionID); ierr != nil {
			deps.Warn("invalidate session after signing failure", ierr)
		}
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}
	refresh, err := deps.EncodeToken(sessionID, secret)
	if err != nil {
		if ierr := deps.Invalidate(ctx, sessionID); ierr != nil {
			deps.Warn("invalidate session after encoding failure", ierr)
		}
		return IssueResult{Failure: IssueFailureEncode, Err: err}
	}

	return IssueResult{Tokens: Tokens{
		Session:         sess,
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: now.Add(deps.AccessTTL),
	}}
}
