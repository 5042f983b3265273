package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
)

// LogNotifier records that a message would have been sent. It never logs the
// code or token, so it only suits deployments where delivery is handled
// elsewhere or disabled.
type LogNotifier struct {
	log *zap.Logger
}

var _ tenantauth.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("mailer")}
}

func (n *LogNotifier) SendOTP(_ context.Context, msg tenantauth.OTPMessage) error {
	n.log.Info("otp delivery skipped",
		zap.String("user_id", msg.UserID),
		zap.String("purpose", msg.Purpose),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, msg tenantauth.ResetMessage) error {
	n.log.Info("password reset delivery skipped",
		zap.String("user_id", msg.UserID),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}
