package tenantauth

import internalmetrics "github.com/MrEthical07/tenantauth/internal/metrics"

// MetricID identifies an engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess                = internalmetrics.MetricLoginSuccess
	MetricLoginFailure                = internalmetrics.MetricLoginFailure
	MetricLoginLocked                 = internalmetrics.MetricLoginLocked
	MetricOTPIssued                   = internalmetrics.MetricOTPIssued
	MetricOTPDeliveryFailure          = internalmetrics.MetricOTPDeliveryFailure
	MetricOTPVerifySuccess            = internalmetrics.MetricOTPVerifySuccess
	MetricOTPVerifyFailure            = internalmetrics.MetricOTPVerifyFailure
	MetricOTPExpired                  = internalmetrics.MetricOTPExpired
	MetricOTPRateLimited              = internalmetrics.MetricOTPRateLimited
	MetricRefreshSuccess              = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure              = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected        = internalmetrics.MetricRefreshReuseDetected
	MetricSessionCreated              = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated          = internalmetrics.MetricSessionInvalidated
	MetricSessionIdleExpired          = internalmetrics.MetricSessionIdleExpired
	MetricLogout                      = internalmetrics.MetricLogout
	MetricLogoutAll                   = internalmetrics.MetricLogoutAll
	MetricAuthorizeAllowed            = internalmetrics.MetricAuthorizeAllowed
	MetricAuthorizeDenied             = internalmetrics.MetricAuthorizeDenied
	MetricTenantMismatch              = internalmetrics.MetricTenantMismatch
	MetricPasswordResetRequest        = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetRateLimited    = internalmetrics.MetricPasswordResetRateLimited
	MetricPasswordResetConfirmSuccess = internalmetrics.MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure = internalmetrics.MetricPasswordResetConfirmFailure
	MetricPasswordChangeSuccess       = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld    = internalmetrics.MetricPasswordChangeInvalidOld
	MetricPasswordChangeReuseRejected = internalmetrics.MetricPasswordChangeReuseRejected
	MetricPasswordHashUpgraded        = internalmetrics.MetricPasswordHashUpgraded
	MetricUserCreated                 = internalmetrics.MetricUserCreated
	MetricUserDeleted                 = internalmetrics.MetricUserDeleted
	MetricValidateLatency             = internalmetrics.MetricValidateLatency
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics returns a no-op instance unless cfg.Enabled is set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
