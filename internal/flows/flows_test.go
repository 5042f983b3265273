package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/session"
)

var (
	errLocked    = errors.New("locked")
	errLimited   = errors.New("limited")
	errNotFound  = errors.New("not found")
	errMismatch  = errors.New("mismatch")
	errExpired   = errors.New("expired")
	errExceeded  = errors.New("exceeded")
	errIdle      = errors.New("idle")
	errReused    = errors.New("reused")
	errBackend   = errors.New("backend")
	errDelivery  = errors.New("delivery")
	errPolicy    = errors.New("policy")
	errSignature = errors.New("signature")
)

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func passwordDeps(users map[string]User) (*PasswordDeps, *[]string, *int) {
	var verified []string
	failures := 0
	deps := &PasswordDeps{
		LookupUser: func(_ context.Context, email string) (User, bool, error) {
			u, ok := users[email]
			return u, ok, nil
		},
		Verify: func(plain, encoded string) (bool, error) {
			verified = append(verified, encoded)
			return encoded == "hash:"+plain, nil
		},
		DummyHash: "dummy",
		RecordFailure: func(context.Context, string, string) (time.Duration, error) {
			failures++
			return 0, nil
		},
		IsLocked: is(errLocked),
	}
	return deps, &verified, &failures
}

func TestVerifyPasswordUnknownUserUsesDummyHash(t *testing.T) {
	deps, verified, failures := passwordDeps(map[string]User{})

	res := RunVerifyPassword(context.Background(), "ghost@example.com", "pw", "", *deps)
	if res.Failure != PasswordFailureUnknownUser {
		t.Fatalf("expected unknown user, got %v", res.Failure)
	}
	if len(*verified) != 1 || (*verified)[0] != "dummy" {
		t.Fatalf("dummy hash must be verified, got %v", *verified)
	}
	if *failures != 1 {
		t.Fatalf("failure must be recorded, got %d", *failures)
	}
}

func TestVerifyPasswordInactiveStillVerifies(t *testing.T) {
	deps, verified, failures := passwordDeps(map[string]User{
		"a@example.com": {UserID: "u1", Email: "a@example.com", PasswordHash: "hash:pw"},
	})

	res := RunVerifyPassword(context.Background(), "a@example.com", "pw", "", *deps)
	if res.Failure != PasswordFailureInactive {
		t.Fatalf("expected inactive, got %v", res.Failure)
	}
	if len(*verified) != 1 || *failures != 1 {
		t.Fatalf("inactive path must verify once and record, got %d/%d", len(*verified), *failures)
	}
	if res.User.PasswordHash != "" {
		t.Fatalf("hash must not leak from a failed result")
	}
}

func TestVerifyPasswordLockedSkipsLookup(t *testing.T) {
	deps, verified, _ := passwordDeps(nil)
	deps.CheckLockout = func(context.Context, string, string) (time.Duration, error) {
		return 30 * time.Second, errLocked
	}
	deps.LookupUser = func(context.Context, string) (User, bool, error) {
		t.Fatal("lookup must not run while locked")
		return User{}, false, nil
	}

	res := RunVerifyPassword(context.Background(), "a@example.com", "pw", "10.0.0.1", *deps)
	if res.Failure != PasswordFailureLocked || res.RetryAfter != 30*time.Second {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(*verified) != 0 {
		t.Fatalf("no hash may be verified while locked")
	}
}

func TestVerifyPasswordSuccessUpgradesHash(t *testing.T) {
	deps, _, failures := passwordDeps(map[string]User{
		"a@example.com": {UserID: "u1", Email: "a@example.com", PasswordHash: "hash:pw", Active: true},
	})
	var reset, updated string
	deps.ResetFailures = func(_ context.Context, email string) error {
		reset = email
		return nil
	}
	deps.UpgradeOnLogin = true
	deps.NeedsUpgrade = func(string) (bool, error) { return true, nil }
	deps.Hash = func(plain string) (string, error) { return "new:" + plain, nil }
	deps.UpdateHash = func(_ context.Context, _ string, encoded string) error {
		updated = encoded
		return nil
	}

	res := RunVerifyPassword(context.Background(), "a@example.com", "pw", "", *deps)
	if res.Failure != PasswordFailureNone || !res.Upgraded {
		t.Fatalf("unexpected result: %+v", res)
	}
	if reset != "a@example.com" || updated != "new:pw" || *failures != 0 {
		t.Fatalf("reset=%q updated=%q failures=%d", reset, updated, *failures)
	}
	if res.User.PasswordHash != "" {
		t.Fatalf("hash must be cleared from the result")
	}
}

func otpDeps() *OTPDeps {
	return &OTPDeps{
		TTL:            time.Minute,
		MaxAttempts:    3,
		NewCode:        func() (string, error) { return "123456", nil },
		NewChallengeID: func() (string, error) { return "c1", nil },
		HashCode: func(userID, purpose, code string) [32]byte {
			var h [32]byte
			copy(h[:], userID+purpose+code)
			return h
		},
		Save:          func(context.Context, Challenge, time.Duration) error { return nil },
		Deliver:       func(context.Context, User, string, string, time.Time) error { return nil },
		Revoke:        func(context.Context, string, string, string) error { return nil },
		IsRateLimited: is(errLimited),
		IsNotFound:    is(errNotFound),
		IsExpired:     is(errExpired),
		IsMismatch:    is(errMismatch),
		IsExceeded:    is(errExceeded),
	}
}

func TestIssueOTPDeliveryFailureRevokes(t *testing.T) {
	deps := otpDeps()
	var revoked string
	deps.Deliver = func(context.Context, User, string, string, time.Time) error { return errDelivery }
	deps.Revoke = func(_ context.Context, _, _ string, challengeID string) error {
		revoked = challengeID
		return nil
	}

	res := RunIssueOTP(context.Background(), User{UserID: "u1"}, "login", *deps)
	if res.Failure != OTPFailureDelivery || revoked != "c1" {
		t.Fatalf("expected delivery failure with rollback, got %+v revoked=%q", res, revoked)
	}
}

func TestIssueOTPRateLimited(t *testing.T) {
	deps := otpDeps()
	deps.Budget = func(context.Context, string) error { return errLimited }
	deps.Save = func(context.Context, Challenge, time.Duration) error {
		t.Fatal("nothing may be saved once the budget is spent")
		return nil
	}

	if res := RunIssueOTP(context.Background(), User{UserID: "u1"}, "login", *deps); res.Failure != OTPFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", res.Failure)
	}
}

func TestVerifyOTPClassification(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want OTPFailureKind
	}{
		{nil, OTPFailureNone},
		{errMismatch, OTPFailureMismatch},
		{errors.Join(errMismatch, errExceeded), OTPFailureAttemptsExceeded},
		{errExpired, OTPFailureExpired},
		{errNotFound, OTPFailureNotFound},
		{errBackend, OTPFailureBackend},
	} {
		deps := otpDeps()
		deps.Check = func(context.Context, string, string, [32]byte, int) (string, error) {
			return "c1", tc.err
		}
		if res := RunVerifyOTP(context.Background(), "u1", "login", "123456", *deps); res.Failure != tc.want {
			t.Fatalf("err %v: expected %v, got %v", tc.err, tc.want, res.Failure)
		}
	}
}

func TestVerifyOTPEmptyCodeNeverReachesStore(t *testing.T) {
	deps := otpDeps()
	deps.Check = func(context.Context, string, string, [32]byte, int) (string, error) {
		t.Fatal("store must not be called for an empty code")
		return "", nil
	}
	if res := RunVerifyOTP(context.Background(), "u1", "login", "", *deps); res.Failure != OTPFailureNotFound {
		t.Fatalf("expected not found, got %v", res.Failure)
	}
}

func sessionDeps() *SessionDeps {
	return &SessionDeps{
		AccessTTL:    time.Minute,
		NewSessionID: func() (string, error) { return "s1", nil },
		NewSecret:    func() ([32]byte, error) { return [32]byte{1}, nil },
		HashSecret:   func(s [32]byte) [32]byte { return s },
		EncodeToken:  func(id string, _ [32]byte) (string, error) { return "rt-" + id, nil },
		SignAccess:   func(sub jwt.Subject) (string, error) { return "at-" + sub.SessionID, nil },
		Create:       func(context.Context, *session.Session) error { return nil },
		Invalidate:   func(context.Context, string) error { return nil },
	}
}

func TestIssueSessionSignFailureInvalidates(t *testing.T) {
	deps := sessionDeps()
	var invalidated string
	deps.SignAccess = func(jwt.Subject) (string, error) { return "", errSignature }
	deps.Invalidate = func(_ context.Context, sid string) error {
		invalidated = sid
		return nil
	}

	res := RunIssueSession(context.Background(), User{UserID: "u1"}, ClientMeta{}, *deps)
	if res.Failure != IssueFailureSign || invalidated != "s1" {
		t.Fatalf("expected sign failure with cleanup, got %+v invalidated=%q", res.Failure, invalidated)
	}
}

func TestIssueSessionCarriesSnapshot(t *testing.T) {
	deps := sessionDeps()
	var created *session.Session
	deps.Create = func(_ context.Context, s *session.Session) error {
		created = s
		return nil
	}

	u := User{UserID: "u1", RoleID: "admin", CompanyID: "c1"}
	res := RunIssueSession(context.Background(), u, ClientMeta{IP: "10.0.0.1", UserAgent: "ua"}, *deps)
	if res.Failure != IssueFailureNone {
		t.Fatalf("issue failed: %v", res.Err)
	}
	if created.RoleID != "admin" || created.CompanyID != "c1" || created.ClientIP != "10.0.0.1" || created.UserAgent != "ua" {
		t.Fatalf("unexpected session snapshot: %+v", created)
	}
	if res.AccessToken != "at-s1" || res.RefreshToken != "rt-s1" {
		t.Fatalf("unexpected tokens: %q %q", res.AccessToken, res.RefreshToken)
	}
}

func refreshDeps() *RefreshDeps {
	return &RefreshDeps{
		AccessTTL: time.Minute,
		DecodeToken: func(tok string) (string, [32]byte, error) {
			if tok == "" {
				return "", [32]byte{}, errors.New("empty")
			}
			return tok, [32]byte{}, nil
		},
		NewSessionID:  func() (string, error) { return "next", nil },
		NewSecret:     func() ([32]byte, error) { return [32]byte{2}, nil },
		HashSecret:    func(s [32]byte) [32]byte { return s },
		EncodeToken:   func(id string, _ [32]byte) (string, error) { return "rt-" + id, nil },
		SignAccess:    func(jwt.Subject) (string, error) { return "at", nil },
		Invalidate:    func(context.Context, string) error { return nil },
		IsRateLimited: is(errLimited),
		IsNotFound:    is(errNotFound),
		IsMismatch:    is(errMismatch),
		IsExpired:     is(errExpired),
		IsIdle:        is(errIdle),
		IsReused:      is(errReused),
	}
}

func TestRefreshClassification(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want RefreshFailureKind
	}{
		{errReused, RefreshFailureReuse},
		{errMismatch, RefreshFailureMismatch},
		{errExpired, RefreshFailureExpired},
		{errIdle, RefreshFailureIdle},
		{errNotFound, RefreshFailureNotFound},
		{errBackend, RefreshFailureRotate},
	} {
		deps := refreshDeps()
		deps.Rotate = func(_ context.Context, oldID string, _ [32]byte, _ string, _ [32]byte) (*session.Session, error) {
			if errors.Is(tc.err, errReused) {
				return &session.Session{SessionID: oldID, UserID: "u1"}, tc.err
			}
			return nil, tc.err
		}
		res := RunRefresh(context.Background(), "old", *deps)
		if res.Failure != tc.want {
			t.Fatalf("err %v: expected %v, got %v", tc.err, tc.want, res.Failure)
		}
		if tc.want == RefreshFailureReuse && res.UserID != "u1" {
			t.Fatalf("reuse must report the owner, got %q", res.UserID)
		}
	}
}

func TestRefreshBudgetCheckedBeforeRotation(t *testing.T) {
	deps := refreshDeps()
	deps.Budget = func(context.Context, string) error { return errLimited }
	deps.Rotate = func(context.Context, string, [32]byte, string, [32]byte) (*session.Session, error) {
		t.Fatal("rotation must not run once the budget is spent")
		return nil, nil
	}
	if res := RunRefresh(context.Background(), "old", *deps); res.Failure != RefreshFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", res.Failure)
	}
	if res := RunRefresh(context.Background(), "", *deps); res.Failure != RefreshFailureDecode {
		t.Fatalf("expected decode failure, got %v", res.Failure)
	}
}

func TestValidateStrictRejectsForeignSession(t *testing.T) {
	deps := ValidateDeps{
		Strict: true,
		ParseAccess: func(string) (*jwt.AccessClaims, error) {
			return &jwt.AccessClaims{UID: "u1", SID: "s1"}, nil
		},
		Touch: func(context.Context, string) (*session.Session, error) {
			return &session.Session{SessionID: "s1", UserID: "u2"}, nil
		},
		IsNotFound: is(errNotFound),
	}
	if res := RunValidate(context.Background(), "tok", deps); res.Failure != ValidateFailureSessionNotFound {
		t.Fatalf("expected session not found, got %v", res.Failure)
	}

	deps.Strict = false
	if res := RunValidate(context.Background(), "tok", deps); res.Failure != ValidateFailureNone {
		t.Fatalf("jwt-only mode must not consult the session, got %v", res.Failure)
	}
}

func TestLogoutForeignSessionUntouched(t *testing.T) {
	deps := LogoutDeps{
		Get: func(context.Context, string) (*session.Session, error) {
			return &session.Session{SessionID: "s1", UserID: "owner"}, nil
		},
		Invalidate: func(context.Context, string) error {
			t.Fatal("foreign session must not be invalidated")
			return nil
		},
	}
	if res := RunLogout(context.Background(), "intruder", "s1", deps); !res.Foreign || res.Invalidated {
		t.Fatalf("unexpected result: %+v", res)
	}

	deps.Get = func(context.Context, string) (*session.Session, error) { return nil, errNotFound }
	deps.IsNotFound = is(errNotFound)
	if res := RunLogout(context.Background(), "owner", "s1", deps); res.Err != nil || res.Invalidated {
		t.Fatalf("missing session must be a silent no-op: %+v", res)
	}
}

func resetDeps() *PasswordResetDeps {
	return &PasswordResetDeps{
		TTL:         time.Minute,
		MaxAttempts: 3,
		LookupUser: func(_ context.Context, email string) (User, bool, error) {
			if email != "a@example.com" {
				return User{}, false, nil
			}
			return User{UserID: "u1", Email: email, Active: true}, true, nil
		},
		NewResetID:  func() (string, error) { return "r1", nil },
		NewSecret:   func() ([32]byte, error) { return [32]byte{3}, nil },
		HashSecret:  func(s [32]byte) [32]byte { return s },
		EncodeToken: func(id string, _ [32]byte) (string, error) { return "tok-" + id, nil },
		DecodeToken: func(tok string) (string, [32]byte, error) { return tok, [32]byte{3}, nil },
		Save:        func(context.Context, string, ResetRecord, time.Duration) error { return nil },
		Consume: func(context.Context, string, [32]byte, int) (ResetRecord, error) {
			return ResetRecord{UserID: "u1"}, nil
		},
		Deliver:        func(context.Context, User, string, time.Time) error { return nil },
		CheckPolicy:    func(string) error { return nil },
		Hash:           func(plain string) (string, error) { return "hash:" + plain, nil },
		UpdateHash:     func(context.Context, string, string) error { return nil },
		RevokeSessions: func(context.Context, string) (int, error) { return 2, nil },
		IsRateLimited:  is(errLimited),
		IsNotFound:     is(errNotFound),
		IsExpired:      is(errExpired),
		IsMismatch:     is(errMismatch),
		IsExceeded:     is(errExceeded),
	}
}

func TestRequestPasswordResetUnknownUserSendsNothing(t *testing.T) {
	deps := resetDeps()
	deps.Save = func(context.Context, string, ResetRecord, time.Duration) error {
		t.Fatal("no token may be stored for an unknown email")
		return nil
	}
	res := RunRequestPasswordReset(context.Background(), "ghost@example.com", "", *deps)
	if res.Failure != ResetRequestFailureUnknownUser {
		t.Fatalf("expected unknown user, got %v", res.Failure)
	}
}

func TestResetPasswordPolicyBeforeConsume(t *testing.T) {
	deps := resetDeps()
	deps.CheckPolicy = func(string) error { return errPolicy }
	deps.Consume = func(context.Context, string, [32]byte, int) (ResetRecord, error) {
		t.Fatal("token must not be consumed for a weak password")
		return ResetRecord{}, nil
	}
	if res := RunResetPassword(context.Background(), "tok-r1", "weak", *deps); res.Failure != ResetFailureWeakPassword {
		t.Fatalf("expected weak password, got %v", res.Failure)
	}
}

func TestResetPasswordClassification(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want ResetFailureKind
	}{
		{nil, ResetFailureNone},
		{errExpired, ResetFailureExpired},
		{errMismatch, ResetFailureInvalid},
		{errExceeded, ResetFailureInvalid},
		{errNotFound, ResetFailureInvalid},
		{errBackend, ResetFailureBackend},
	} {
		deps := resetDeps()
		deps.Consume = func(context.Context, string, [32]byte, int) (ResetRecord, error) {
			if tc.err != nil {
				return ResetRecord{}, tc.err
			}
			return ResetRecord{UserID: "u1"}, nil
		}
		res := RunResetPassword(context.Background(), "tok-r1", "Valid123!", *deps)
		if res.Failure != tc.want {
			t.Fatalf("err %v: expected %v, got %v", tc.err, tc.want, res.Failure)
		}
		if tc.want == ResetFailureNone && res.RevokedSessions != 2 {
			t.Fatalf("expected revoked sessions to be reported, got %d", res.RevokedSessions)
		}
	}
}

func TestResetPasswordRestoresTokenWhenUpdateFails(t *testing.T) {
	deps := resetDeps()
	deps.UpdateHash = func(context.Context, string, string) error { return errBackend }
	deps.RevokeSessions = func(context.Context, string) (int, error) {
		t.Fatal("sessions must survive a failed reset")
		return 0, nil
	}
	var restored string
	deps.Restore = func(_ context.Context, resetID string, rec ResetRecord) error {
		restored = resetID + "/" + rec.UserID
		return nil
	}

	res := RunResetPassword(context.Background(), "r1", "Valid123!", *deps)
	if res.Failure != ResetFailureBackend {
		t.Fatalf("expected backend failure, got %v", res.Failure)
	}
	if restored != "r1/u1" {
		t.Fatalf("expected the token to be restored, got %q", restored)
	}
}

func TestChangePasswordOrder(t *testing.T) {
	base := func() ChangePasswordDeps {
		return ChangePasswordDeps{
			GetUser: func(context.Context, string) (User, bool, error) {
				return User{UserID: "u1", PasswordHash: "hash:old", Active: true}, true, nil
			},
			Verify: func(plain, encoded string) (bool, error) { return encoded == "hash:"+plain, nil },
			CheckPolicy: func(p string) error {
				if p == "weak" {
					return errPolicy
				}
				return nil
			},
			Hash:           func(plain string) (string, error) { return "hash:" + plain, nil },
			UpdateHash:     func(context.Context, string, string) error { return nil },
			RevokeSessions: func(context.Context, string) (int, error) { return 1, nil },
		}
	}

	for _, tc := range []struct {
		old, next string
		want      ChangeFailureKind
	}{
		{"wrong", "Valid123!", ChangeFailureInvalidOld},
		{"old", "old", ChangeFailureReuse},
		{"old", "weak", ChangeFailureWeakPassword},
		{"old", "Valid123!", ChangeFailureNone},
	} {
		res := RunChangePassword(context.Background(), "u1", tc.old, tc.next, base())
		if res.Failure != tc.want {
			t.Fatalf("%s->%s: expected %v, got %v", tc.old, tc.next, tc.want, res.Failure)
		}
	}
}

func TestServiceInitialized(t *testing.T) {
	if (Service{}).Initialized() {
		t.Fatal("zero service must not report initialized")
	}
	svc := New(Deps{
		Password: PasswordDeps{LookupUser: func(context.Context, string) (User, bool, error) { return User{}, false, nil }},
		Validate: ValidateDeps{ParseAccess: func(string) (*jwt.AccessClaims, error) { return nil, errSignature }},
	})
	if !svc.Initialized() {
		t.Fatal("wired service must report initialized")
	}
}
