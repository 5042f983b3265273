package flows

import (
	"context"
	"time"
)

// PasswordFailureKind classifies password verification failures.
type PasswordFailureKind int

const (
	PasswordFailureNone PasswordFailureKind = iota
	PasswordFailureLocked
	PasswordFailureUnknownUser
	PasswordFailureMismatch
	PasswordFailureInactive
	PasswordFailureBackend
)

// PasswordResult carries the verified user or the failure classification.
// Reason is the audit reason; callers must not expose it to clients.
type PasswordResult struct {
	Failure    PasswordFailureKind
	Err        error
	User       User
	RetryAfter time.Duration
	LockedFor  time.Duration
	Upgraded   bool
}

// PasswordDeps wires the password step of login.
type PasswordDeps struct {
	// LookupUser returns found=false for unknown emails; err is reserved for backend failures.
	LookupUser func(ctx context.Context, email string) (User, bool, error)
	Verify     func(plain, encoded string) (bool, error)
	// DummyHash is verified against for unknown emails so both paths cost the same.
	DummyHash string

	CheckLockout  func(ctx context.Context, email, ip string) (time.Duration, error)
	RecordFailure func(ctx context.Context, email, ip string) (time.Duration, error)
	ResetFailures func(ctx context.Context, email string) error

	UpgradeOnLogin bool
	NeedsUpgrade   func(encoded string) (bool, error)
	Hash           func(plain string) (string, error)
	UpdateHash     func(ctx context.Context, userID, encoded string) error

	IsLocked func(error) bool
	Warn     func(msg string, err error)
}

// RunVerifyPassword checks email and password. Unknown email, wrong password
// and inactive accounts differ only in Failure; each records a failed attempt.
func RunVerifyPassword(ctx context.Context, email, plain, ip string, deps PasswordDeps) PasswordResult {
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}

	if deps.CheckLockout != nil {
		retry, err := deps.CheckLockout(ctx, email, ip)
		if err != nil {
			if deps.IsLocked != nil && deps.IsLocked(err) {
				return PasswordResult{Failure: PasswordFailureLocked, Err: err, RetryAfter: retry}
			}
			return PasswordResult{Failure: PasswordFailureBackend, Err: err}
		}
	}

	user, found, err := deps.LookupUser(ctx, email)
	if err != nil {
		return PasswordResult{Failure: PasswordFailureBackend, Err: err}
	}

	encoded := deps.DummyHash
	if found {
		encoded = user.PasswordHash
	}
	ok, verr := deps.Verify(plain, encoded)

	failure := PasswordFailureNone
	switch {
	case !found:
		failure = PasswordFailureUnknownUser
	case verr != nil || !ok:
		failure = PasswordFailureMismatch
	case !user.Active:
		failure = PasswordFailureInactive
	}

	if failure != PasswordFailureNone {
		res := PasswordResult{Failure: failure, Err: verr}
		if found {
			res.User = User{UserID: user.UserID, Email: user.Email}
		}
		if deps.RecordFailure != nil {
			lockedFor, rerr := deps.RecordFailure(ctx, email, ip)
			if rerr != nil {
				deps.Warn("record login failure", rerr)
			}
			res.LockedFor = lockedFor
		}
		return res
	}

	if deps.ResetFailures != nil {
		if err := deps.ResetFailures(ctx, email); err != nil {
			deps.Warn("reset login failures", err)
		}
	}

	res := PasswordResult{User: user}
	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil {
		if needs, err := deps.NeedsUpgrade(user.PasswordHash); err == nil && needs {
			if upgraded, err := deps.Hash(plain); err != nil {
				deps.Warn("password hash upgrade generation failed", err)
			} else if err := deps.UpdateHash(ctx, user.UserID, upgraded); err != nil {
				deps.Warn("password hash upgrade update failed", err)
			} else {
				res.Upgraded = true
			}
		}
	}
	res.User.PasswordHash = ""
	return res
}
