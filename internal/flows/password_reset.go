package flows

import (
	"context"
	"time"
)

// ResetRequestFailureKind classifies what happened to a reset request. None
// of these reach the client; the endpoint always answers the same way.
type ResetRequestFailureKind int

const (
	ResetRequestFailureNone ResetRequestFailureKind = iota
	ResetRequestFailureUnknownUser
	ResetRequestFailureRateLimited
	ResetRequestFailureDelivery
	ResetRequestFailureBackend
)

type ResetRequestResult struct {
	Failure   ResetRequestFailureKind
	Err       error
	UserID    string
	ExpiresAt time.Time
}

// ResetRecord is the stored half of a reset token.
type ResetRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  time.Time
}

// PasswordResetDeps wires both password reset flows.
type PasswordResetDeps struct {
	Now         func() time.Time
	TTL         time.Duration
	MaxAttempts int

	LookupUser  func(ctx context.Context, email string) (User, bool, error)
	Budget      func(ctx context.Context, email, ip string) error
	NewResetID  func() (string, error)
	NewSecret   func() ([32]byte, error)
	HashSecret  func([32]byte) [32]byte
	EncodeToken func(string, [32]byte) (string, error)
	DecodeToken func(string) (string, [32]byte, error)
	Save        func(ctx context.Context, resetID string, rec ResetRecord, ttl time.Duration) error
	Consume     func(ctx context.Context, resetID string, hash [32]byte, maxAttempts int) (ResetRecord, error)
	// Restore gives a consumed token back when the new password could not be stored.
	Restore func(ctx context.Context, resetID string, rec ResetRecord) error
	Deliver     func(ctx context.Context, user User, token string, expiresAt time.Time) error

	CheckPolicy    func(candidate string) error
	Hash           func(plain string) (string, error)
	UpdateHash     func(ctx context.Context, userID, encoded string) error
	RevokeSessions func(ctx context.Context, userID string) (int, error)
	ClearOTPs      func(ctx context.Context, userID string) error

	IsRateLimited func(error) bool
	IsNotFound    func(error) bool
	IsExpired     func(error) bool
	IsMismatch    func(error) bool
	IsExceeded    func(error) bool
	Warn          func(msg string, err error)
}

// RunRequestPasswordReset issues and delivers a reset token when email
// belongs to an active user. A new token replaces the previous one.
func RunRequestPasswordReset(ctx context.Context, email, ip string, deps PasswordResetDeps) ResetRequestResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.Budget != nil {
		if err := deps.Budget(ctx, email, ip); err != nil {
			if deps.IsRateLimited != nil && deps.IsRateLimited(err) {
				return ResetRequestResult{Failure: ResetRequestFailureRateLimited, Err: err}
			}
			return ResetRequestResult{Failure: ResetRequestFailureBackend, Err: err}
		}
	}

	user, found, err := deps.LookupUser(ctx, email)
	if err != nil {
		return ResetRequestResult{Failure: ResetRequestFailureBackend, Err: err}
	}
	if !found || !user.Active {
		return ResetRequestResult{Failure: ResetRequestFailureUnknownUser, UserID: user.UserID}
	}

	resetID, err := deps.NewResetID()
	if err != nil {
		return ResetRequestResult{Failure: ResetRequestFailureBackend, Err: err, UserID: user.UserID}
	}
	secret, err := deps.NewSecret()
	if err != nil {
		return ResetRequestResult{Failure: ResetRequestFailureBackend, Err: err, UserID: user.UserID}
	}
	token, err := deps.EncodeToken(resetID, secret)
	if err != nil {
		return ResetRequestResult{Failure: ResetRequestFailureBackend, Err: err, UserID: user.UserID}
	}

	expiresAt := deps.Now().Add(deps.TTL)
	if err := deps.Save(ctx, resetID, ResetRecord{UserID: user.UserID, SecretHash: deps.HashSecret(secret)}, deps.TTL); err != nil {
		return ResetRequestResult{Failure: ResetRequestFailureBackend, Err: err, UserID: user.UserID}
	}
	if err := deps.Deliver(ctx, user, token, expiresAt); err != nil {
		return ResetRequestResult{Failure: ResetRequestFailureDelivery, Err: err, UserID: user.UserID}
	}
	return ResetRequestResult{UserID: user.UserID, ExpiresAt: expiresAt}
}

// ResetFailureKind classifies reset confirmation failures.
type ResetFailureKind int

const (
	ResetFailureNone ResetFailureKind = iota
	ResetFailureWeakPassword
	ResetFailureInvalid
	ResetFailureExpired
	ResetFailureBackend
)

type ResetResult struct {
	Failure         ResetFailureKind
	Err             error
	UserID          string
	RevokedSessions int
}

// RunResetPassword validates newPassword against the policy first, so a weak
// choice does not burn the token, then consumes the token, stores the new
// hash and revokes every session of the user. When the hash cannot be stored
// the token is restored so the user can retry with the same link.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) ResetResult {
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}

	if err := deps.CheckPolicy(newPassword); err != nil {
		return ResetResult{Failure: ResetFailureWeakPassword, Err: err}
	}

	resetID, secret, err := deps.DecodeToken(token)
	if err != nil {
		return ResetResult{Failure: ResetFailureInvalid, Err: err}
	}

	rec, err := deps.Consume(ctx, resetID, deps.HashSecret(secret), deps.MaxAttempts)
	if err != nil {
		is := func(f func(error) bool) bool { return f != nil && f(err) }
		switch {
		case is(deps.IsExpired):
			return ResetResult{Failure: ResetFailureExpired, Err: err}
		case is(deps.IsNotFound), is(deps.IsMismatch), is(deps.IsExceeded):
			return ResetResult{Failure: ResetFailureInvalid, Err: err}
		default:
			return ResetResult{Failure: ResetFailureBackend, Err: err}
		}
	}

	userID := rec.UserID
	restore := func(cause error) ResetResult {
		if deps.Restore != nil {
			if err := deps.Restore(ctx, resetID, rec); err != nil {
				deps.Warn("restore reset token after failed update", err)
			}
		}
		return ResetResult{Failure: ResetFailureBackend, Err: cause, UserID: userID}
	}

	encoded, err := deps.Hash(newPassword)
	if err != nil {
		return restore(err)
	}
	if err := deps.UpdateHash(ctx, userID, encoded); err != nil {
		return restore(err)
	}

	revoked, err := deps.RevokeSessions(ctx, userID)
	if err != nil {
		return ResetResult{Failure: ResetFailureBackend, Err: err, UserID: userID}
	}
	if deps.ClearOTPs != nil {
		if err := deps.ClearOTPs(ctx, userID); err != nil {
			deps.Warn("clear otp challenges after reset", err)
		}
	}
	return ResetResult{UserID: userID, RevokedSessions: revoked}
}
