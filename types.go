package tenantauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"go.uber.org/zap"
)

// PurposeLogin is the OTP purpose used by the login flow.
const PurposeLogin = "login"

// UserRecord is a stored account as seen by the engine.
type UserRecord struct {
	UserID       string
	Email        string
	RoleID       string
	CompanyID    string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// Role is a flat role. TenantScoped roles require a company on every user
// holding them; unscoped roles (supervisors) must not have one.
type Role struct {
	ID           string
	Name         string
	TenantScoped bool
}

// Company is a tenant boundary.
type Company struct {
	ID   string
	Name string
}

// Identity is the result of a successful password check.
type Identity struct {
	UserID         string
	Email          string
	RoleID         string
	CompanyID      string
	TenantUnscoped bool
}

// CreateUserInput is what the engine hands to CredentialStore.CreateUser.
// The password is already hashed.
type CreateUserInput struct {
	UserID       string
	Email        string
	PasswordHash string
	RoleID       string
	CompanyID    string
}

// NewUser is the input of Engine.CreateUser.
type NewUser struct {
	Email     string
	Password  string
	RoleID    string
	CompanyID string
}

// CredentialStore is the database of record for users, roles and their
// permission links. Lookups of missing users return ErrUserNotFound, missing
// roles ErrRoleNotFound and duplicate emails ErrEmailTaken; any other error
// is treated as a backend failure.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, in CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	SetUserActive(ctx context.Context, userID string, active bool) error
	DeleteUser(ctx context.Context, userID string) error
	GetRole(ctx context.Context, roleID string) (Role, error)
	PermissionsForRole(ctx context.Context, roleID string) ([]string, error)
}

// OTPMessage carries a freshly issued code to the delivery channel.
type OTPMessage struct {
	UserID    string
	Email     string
	Purpose   string
	Code      string
	ExpiresAt time.Time
}

// ResetMessage carries a password reset token to the delivery channel.
type ResetMessage struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Notifier delivers secrets out of band. Implementations must not log the
// code or token.
type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// LoginResult is returned by Engine.Login. Tokens are never issued by the
// password step; the caller proceeds with VerifyOTP.
type LoginResult struct {
	OTPPending         bool
	UserID             string
	ChallengeExpiresAt time.Time
}

// TokenPair is issued after OTP verification and on every refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is the request principal produced by Engine.ValidateAccess.
type AuthResult struct {
	UserID         string
	RoleID         string
	CompanyID      string
	TenantUnscoped bool
	SessionID      string
	Permissions    []string
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	RedisOK      bool
	RedisLatency time.Duration
	AuditDropped uint64
}

// SessionInfo is the client-facing view of a session.
type SessionInfo struct {
	SessionID  string
	UserAgent  string
	ClientIP   string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// FailureSubject selects the series counted by Engine.CountRecentFailures.
type FailureSubject int

const (
	FailuresByEmail FailureSubject = iota
	FailuresByAddress
)

// AuditEvent is one append-only audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel; mostly useful in tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// AuditErrorSink is a sink whose writes can fail, such as a database table.
type AuditErrorSink = internalaudit.ErrorSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink logs audit events through log.
func NewZapSink(log *zap.Logger) AuditSink {
	return internalaudit.NewZapSink(log)
}

// TolerantSink adapts a failing sink; write errors are logged, never returned.
func TolerantSink(s AuditErrorSink, log *zap.Logger) AuditSink {
	return internalaudit.Tolerant(s, log)
}
