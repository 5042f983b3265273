package flows

import "context"

// ChangeFailureKind classifies password change failures.
type ChangeFailureKind int

const (
	ChangeFailureNone ChangeFailureKind = iota
	ChangeFailureUnknownUser
	ChangeFailureInvalidOld
	ChangeFailureReuse
	ChangeFailureWeakPassword
	ChangeFailureBackend
)

type ChangeResult struct {
	Failure         ChangeFailureKind
	Err             error
	RevokedSessions int
}

type ChangePasswordDeps struct {
	GetUser        func(ctx context.Context, userID string) (User, bool, error)
	Verify         func(plain, encoded string) (bool, error)
	CheckPolicy    func(candidate string) error
	Hash           func(plain string) (string, error)
	UpdateHash     func(ctx context.Context, userID, encoded string) error
	RevokeSessions func(ctx context.Context, userID string) (int, error)
}

// RunChangePassword replaces the password of an authenticated user and
// revokes all of their sessions.
func RunChangePassword(ctx context.Context, userID, oldPassword, newPassword string, deps ChangePasswordDeps) ChangeResult {
	user, found, err := deps.GetUser(ctx, userID)
	if err != nil {
		return ChangeResult{Failure: ChangeFailureBackend, Err: err}
	}
	if !found || !user.Active {
		return ChangeResult{Failure: ChangeFailureUnknownUser}
	}

	ok, err := deps.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return ChangeResult{Failure: ChangeFailureInvalidOld, Err: err}
	}
	if oldPassword == newPassword {
		return ChangeResult{Failure: ChangeFailureReuse}
	}
	if err := deps.CheckPolicy(newPassword); err != nil {
		return ChangeResult{Failure: ChangeFailureWeakPassword, Err: err}
	}

	encoded, err := deps.Hash(newPassword)
	if err != nil {
		return ChangeResult{Failure: ChangeFailureBackend, Err: err}
	}
	if err := deps.UpdateHash(ctx, userID, encoded); err != nil {
		return ChangeResult{Failure: ChangeFailureBackend, Err: err}
	}
	revoked, err := deps.RevokeSessions(ctx, userID)
	if err != nil {
		return ChangeResult{Failure: ChangeFailureBackend, Err: err}
	}
	return ChangeResult{RevokedSessions: revoked}
}
