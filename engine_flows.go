package tenantauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tenantauth/internal"
	"github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/limiters"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/internal/stores"
	"github.com/MrEthical07/tenantauth/session"
	"github.com/google/uuid"
)

func newRecordID() (string, error) {
	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// newResetID reuses the UUID generator; a v4 UUID has the size of a TokenID.
func newResetID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return internal.TokenID(id).String(), nil
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func (e *Engine) buildFlows() flows.Service {
	accessTTL := e.jwt.AccessTTL()

	return flows.New(flows.Deps{
		Password: flows.PasswordDeps{
			LookupUser: e.lookupByEmail,
			Verify:     e.hasher.Verify,
			DummyHash:  e.dummyHash,
			CheckLockout: func(ctx context.Context, email, ip string) (time.Duration, error) {
				return e.failures.Check(ctx, email, ip)
			},
			RecordFailure: func(ctx context.Context, email, ip string) (time.Duration, error) {
				d, err := e.failures.RecordFailure(ctx, email, ip)
				return d.LockedFor, err
			},
			ResetFailures:  e.failures.Forgive,
			UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
			NeedsUpgrade:   e.hasher.NeedsUpgrade,
			Hash:           e.hasher.Hash,
			UpdateHash:     e.store.UpdatePasswordHash,
			IsLocked:       isErr(limiters.ErrLocked),
			Warn:           e.warn,
		},
		OTP: flows.OTPDeps{
			Now:         time.Now,
			TTL:         e.config.OTP.TTL,
			MaxAttempts: e.config.OTP.MaxAttempts,
			NewCode: func() (string, error) {
				return internal.NewOTP(e.config.OTP.Digits)
			},
			NewChallengeID: newRecordID,
			HashCode: func(userID, purpose, code string) [32]byte {
				return internal.HashOTP(userID+":"+purpose, code)
			},
			Budget: func(ctx context.Context, userID string) error {
				return e.limiter.Hit(ctx, rate.ScopeOTPIssue, userID)
			},
			Save: func(ctx context.Context, c flows.Challenge, ttl time.Duration) error {
				return e.otps.Issue(ctx, &stores.OTPChallenge{
					ChallengeID: c.ChallengeID,
					UserID:      c.UserID,
					Purpose:     c.Purpose,
					CodeHash:    c.CodeHash,
				}, ttl)
			},
			Check:  e.otps.Verify,
			Revoke: e.otps.Revoke,
			Deliver: func(ctx context.Context, u flows.User, purpose, code string, expiresAt time.Time) error {
				return e.notifier.SendOTP(ctx, OTPMessage{
					UserID:    u.UserID,
					Email:     u.Email,
					Purpose:   purpose,
					Code:      code,
					ExpiresAt: expiresAt,
				})
			},
			IsRateLimited: isErr(rate.ErrRateLimited),
			IsNotFound:    isErr(stores.ErrOTPNotFound),
			IsExpired:     isErr(stores.ErrOTPExpired),
			IsMismatch:    isErr(stores.ErrOTPMismatch),
			IsExceeded:    isErr(stores.ErrOTPAttemptsExceeded),
			Warn:          e.warn,
		},
		Session: flows.SessionDeps{
			Now:          time.Now,
			AccessTTL:    accessTTL,
			NewSessionID: newRecordID,
			NewSecret:    internal.NewSecret,
			HashSecret:   internal.HashSecret,
			EncodeToken:  internal.EncodeToken,
			SignAccess:   e.jwt.CreateAccess,
			Create:       e.sessions.Create,
			Invalidate:   e.sessions.Invalidate,
			Warn:         e.warn,
		},
		Refresh: flows.RefreshDeps{
			Now:         time.Now,
			AccessTTL:   accessTTL,
			DecodeToken: internal.DecodeToken,
			Budget: func(ctx context.Context, sessionID string) error {
				return e.limiter.Hit(ctx, rate.ScopeRefresh, sessionID)
			},
			NewSessionID:  newRecordID,
			NewSecret:     internal.NewSecret,
			HashSecret:    internal.HashSecret,
			EncodeToken:   internal.EncodeToken,
			SignAccess:    e.jwt.CreateAccess,
			Rotate:        e.sessions.Rotate,
			Invalidate:    e.sessions.Invalidate,
			IsRateLimited: isErr(rate.ErrRateLimited),
			IsNotFound:    isErr(session.ErrNotFound),
			IsMismatch:    isErr(session.ErrSecretMismatch),
			IsExpired:     isErr(session.ErrExpired),
			IsIdle:        isErr(session.ErrIdleExpired),
			IsReused:      isErr(session.ErrReused),
			Warn:          e.warn,
		},
		Validate: flows.ValidateDeps{
			ParseAccess: e.jwt.ParseAccess,
			Touch:       e.sessions.Touch,
			IsNotFound:  isErr(session.ErrNotFound),
			IsExpired:   isErr(session.ErrExpired),
			IsIdle:      isErr(session.ErrIdleExpired),
		},
		Logout: flows.LogoutDeps{
			Get:        e.sessions.Get,
			Invalidate: e.sessions.Invalidate,
			IsNotFound: isErr(session.ErrNotFound),
		},
		PasswordReset: flows.PasswordResetDeps{
			Now:         time.Now,
			TTL:         e.config.PasswordReset.TTL,
			MaxAttempts: e.config.PasswordReset.MaxAttempts,
			LookupUser:  e.lookupByEmail,
			Budget: func(ctx context.Context, email, ip string) error {
				if err := e.limiter.Hit(ctx, rate.ScopeResetRequest, "email:"+email); err != nil {
					return err
				}
				if ip == "" {
					return nil
				}
				return e.limiter.Hit(ctx, rate.ScopeResetRequest, "addr:"+ip)
			},
			NewResetID:  newResetID,
			NewSecret:   internal.NewSecret,
			HashSecret:  internal.HashSecret,
			EncodeToken: internal.EncodeToken,
			DecodeToken: internal.DecodeToken,
			Save: func(ctx context.Context, resetID string, rec flows.ResetRecord, ttl time.Duration) error {
				return e.resets.Save(ctx, resetID, &stores.PasswordResetRecord{
					UserID:     rec.UserID,
					SecretHash: rec.SecretHash,
				}, ttl)
			},
			Consume: func(ctx context.Context, resetID string, hash [32]byte, maxAttempts int) (flows.ResetRecord, error) {
				rec, err := e.resets.Consume(ctx, resetID, hash, maxAttempts)
				if err != nil {
					return flows.ResetRecord{}, err
				}
				return flows.ResetRecord{UserID: rec.UserID, SecretHash: rec.SecretHash, ExpiresAt: time.Unix(rec.ExpiresAt, 0)}, nil
			},
			Restore: func(ctx context.Context, resetID string, rec flows.ResetRecord) error {
				_, err := e.resets.Restore(ctx, resetID, &stores.PasswordResetRecord{
					UserID:     rec.UserID,
					SecretHash: rec.SecretHash,
					ExpiresAt:  rec.ExpiresAt.Unix(),
				})
				return err
			},
			Deliver: func(ctx context.Context, u flows.User, token string, expiresAt time.Time) error {
				return e.notifier.SendPasswordReset(ctx, ResetMessage{
					UserID:    u.UserID,
					Email:     u.Email,
					Token:     token,
					ExpiresAt: expiresAt,
				})
			},
			CheckPolicy:    e.config.Password.Policy.Check,
			Hash:           e.hasher.Hash,
			UpdateHash:     e.store.UpdatePasswordHash,
			RevokeSessions: e.sessions.InvalidateAllForUser,
			ClearOTPs: func(ctx context.Context, userID string) error {
				return e.otps.DeleteForUser(ctx, userID, e.purposes...)
			},
			IsRateLimited: isErr(rate.ErrRateLimited),
			IsNotFound:    isErr(stores.ErrResetNotFound),
			IsExpired:     isErr(stores.ErrResetExpired),
			IsMismatch:    isErr(stores.ErrResetSecretMismatch),
			IsExceeded:    isErr(stores.ErrResetAttemptsExceeded),
			Warn:          e.warn,
		},
		ChangePassword: flows.ChangePasswordDeps{
			GetUser:        e.loadUser,
			Verify:         e.hasher.Verify,
			CheckPolicy:    e.config.Password.Policy.Check,
			Hash:           e.hasher.Hash,
			UpdateHash:     e.store.UpdatePasswordHash,
			RevokeSessions: e.sessions.InvalidateAllForUser,
		},
	})
}
