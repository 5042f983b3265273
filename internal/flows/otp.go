package flows

import (
	"context"
	"time"
)

// OTPFailureKind classifies OTP issue and verify failures.
type OTPFailureKind int

const (
	OTPFailureNone OTPFailureKind = iota
	OTPFailureRateLimited
	OTPFailureDelivery
	OTPFailureNotFound
	OTPFailureExpired
	OTPFailureMismatch
	OTPFailureAttemptsExceeded
	OTPFailureBackend
)

// Challenge is a challenge about to be persisted.
type Challenge struct {
	ChallengeID string
	UserID      string
	Purpose     string
	CodeHash    [32]byte
	ExpiresAt   time.Time
}

// OTPResult is returned by both OTP flows.
type OTPResult struct {
	Failure     OTPFailureKind
	Err         error
	ChallengeID string
	ExpiresAt   time.Time
}

// OTPDeps wires the OTP flows. Store errors are classified through the Is* hooks.
type OTPDeps struct {
	Now         func() time.Time
	TTL         time.Duration
	MaxAttempts int

	NewCode        func() (string, error)
	NewChallengeID func() (string, error)
	HashCode       func(userID, purpose, code string) [32]byte

	Budget  func(ctx context.Context, userID string) error
	Save    func(ctx context.Context, c Challenge, ttl time.Duration) error
	Check   func(ctx context.Context, userID, purpose string, hash [32]byte, maxAttempts int) (string, error)
	Revoke  func(ctx context.Context, userID, purpose, challengeID string) error
	Deliver func(ctx context.Context, user User, purpose, code string, expiresAt time.Time) error

	IsRateLimited func(error) bool
	IsNotFound    func(error) bool
	IsExpired     func(error) bool
	IsMismatch    func(error) bool
	IsExceeded    func(error) bool

	Warn func(msg string, err error)
}

// RunIssueOTP creates a challenge for (user, purpose), replacing any earlier
// one, and delivers the code. A failed delivery revokes the new challenge.
func RunIssueOTP(ctx context.Context, user User, purpose string, deps OTPDeps) OTPResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}

	if deps.Budget != nil {
		if err := deps.Budget(ctx, user.UserID); err != nil {
			if deps.IsRateLimited != nil && deps.IsRateLimited(err) {
				return OTPResult{Failure: OTPFailureRateLimited, Err: err}
			}
			return OTPResult{Failure: OTPFailureBackend, Err: err}
		}
	}

	code, err := deps.NewCode()
	if err != nil {
		return OTPResult{Failure: OTPFailureBackend, Err: err}
	}
	challengeID, err := deps.NewChallengeID()
	if err != nil {
		return OTPResult{Failure: OTPFailureBackend, Err: err}
	}

	expiresAt := deps.Now().Add(deps.TTL)
	c := Challenge{
		ChallengeID: challengeID,
		UserID:      user.UserID,
		Purpose:     purpose,
		CodeHash:    deps.HashCode(user.UserID, purpose, code),
		ExpiresAt:   expiresAt,
	}
	if err := deps.Save(ctx, c, deps.TTL); err != nil {
		return OTPResult{Failure: OTPFailureBackend, Err: err}
	}

	if err := deps.Deliver(ctx, user, purpose, code, expiresAt); err != nil {
		if rerr := deps.Revoke(ctx, user.UserID, purpose, challengeID); rerr != nil {
			deps.Warn("otp rollback after delivery failure", rerr)
		}
		return OTPResult{Failure: OTPFailureDelivery, Err: err, ChallengeID: challengeID}
	}

	return OTPResult{ChallengeID: challengeID, ExpiresAt: expiresAt}
}

// RunVerifyOTP checks and consumes the current challenge in one step.
func RunVerifyOTP(ctx context.Context, userID, purpose, code string, deps OTPDeps) OTPResult {
	if userID == "" || code == "" {
		return OTPResult{Failure: OTPFailureNotFound}
	}

	challengeID, err := deps.Check(ctx, userID, purpose, deps.HashCode(userID, purpose, code), deps.MaxAttempts)
	if err == nil {
		return OTPResult{ChallengeID: challengeID}
	}

	is := func(f func(error) bool) bool { return f != nil && f(err) }
	switch {
	case is(deps.IsExceeded):
		return OTPResult{Failure: OTPFailureAttemptsExceeded, Err: err}
	case is(deps.IsMismatch):
		return OTPResult{Failure: OTPFailureMismatch, Err: err}
	case is(deps.IsExpired):
		return OTPResult{Failure: OTPFailureExpired, Err: err}
	case is(deps.IsNotFound):
		return OTPResult{Failure: OTPFailureNotFound, Err: err}
	default:
		return OTPResult{Failure: OTPFailureBackend, Err: err}
	}
}
