package flows

import "context"

// Deps groups flow dependency sets. The engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Password       PasswordDeps
	OTP            OTPDeps
	Session        SessionDeps
	Refresh        RefreshDeps
	Validate       ValidateDeps
	Logout         LogoutDeps
	PasswordReset  PasswordResetDeps
	ChangePassword ChangePasswordDeps
}

// Service is the centralized flow runner built once by the engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Password.LookupUser != nil
}

func (s Service) VerifyPassword(ctx context.Context, email, plain, ip string) PasswordResult {
	return RunVerifyPassword(ctx, email, plain, ip, s.deps.Password)
}

func (s Service) IssueOTP(ctx context.Context, user User, purpose string) OTPResult {
	return RunIssueOTP(ctx, user, purpose, s.deps.OTP)
}

func (s Service) VerifyOTP(ctx context.Context, userID, purpose, code string) OTPResult {
	return RunVerifyOTP(ctx, userID, purpose, code, s.deps.OTP)
}

func (s Service) IssueSession(ctx context.Context, user User, meta ClientMeta) IssueResult {
	return RunIssueSession(ctx, user, meta, s.deps.Session)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, tokenStr string, strict bool) ValidateResult {
	deps := s.deps.Validate
	deps.Strict = strict
	return RunValidate(ctx, tokenStr, deps)
}

func (s Service) Logout(ctx context.Context, userID, sessionID string) LogoutResult {
	return RunLogout(ctx, userID, sessionID, s.deps.Logout)
}

func (s Service) RequestPasswordReset(ctx context.Context, email, ip string) ResetRequestResult {
	return RunRequestPasswordReset(ctx, email, ip, s.deps.PasswordReset)
}

func (s Service) ResetPassword(ctx context.Context, token, newPassword string) ResetResult {
	return RunResetPassword(ctx, token, newPassword, s.deps.PasswordReset)
}

func (s Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) ChangeResult {
	return RunChangePassword(ctx, userID, oldPassword, newPassword, s.deps.ChangePassword)
}
