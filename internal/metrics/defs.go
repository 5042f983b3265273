package metrics

// Def names an exported series.
type Def struct {
	ID   MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []Def{
	{MetricLoginSuccess, "tenantauth_login_success_total", "Password checks that passed and started an OTP challenge."},
	{MetricLoginFailure, "tenantauth_login_failure_total", "Failed password checks."},
	{MetricLoginLocked, "tenantauth_login_locked_total", "Login attempts refused by lockout."},
	{MetricOTPIssued, "tenantauth_otp_issued_total", "Issued OTP challenges."},
	{MetricOTPDeliveryFailure, "tenantauth_otp_delivery_failure_total", "OTP challenges rolled back after delivery failed."},
	{MetricOTPVerifySuccess, "tenantauth_otp_verify_success_total", "Successful OTP verifications."},
	{MetricOTPVerifyFailure, "tenantauth_otp_verify_failure_total", "Failed OTP verifications."},
	{MetricOTPExpired, "tenantauth_otp_expired_total", "OTP codes presented after expiry."},
	{MetricOTPRateLimited, "tenantauth_otp_rate_limited_total", "OTP issuance refused by the per-user budget."},
	{MetricRefreshSuccess, "tenantauth_refresh_success_total", "Successful refresh rotations."},
	{MetricRefreshFailure, "tenantauth_refresh_failure_total", "Failed refresh rotations."},
	{MetricRefreshReuseDetected, "tenantauth_refresh_reuse_detected_total", "Replayed refresh tokens that revoked a session family."},
	{MetricSessionCreated, "tenantauth_session_created_total", "Created sessions."},
	{MetricSessionInvalidated, "tenantauth_session_invalidated_total", "Invalidated sessions."},
	{MetricSessionIdleExpired, "tenantauth_session_idle_expired_total", "Sessions rejected after the idle window."},
	{MetricLogout, "tenantauth_logout_total", "Single-session logouts."},
	{MetricLogoutAll, "tenantauth_logout_all_total", "Logout-all operations."},
	{MetricAuthorizeAllowed, "tenantauth_authorize_allowed_total", "Allowed authorization checks."},
	{MetricAuthorizeDenied, "tenantauth_authorize_denied_total", "Denied authorization checks."},
	{MetricTenantMismatch, "tenantauth_tenant_mismatch_total", "Authorization denials caused by a company mismatch."},
	{MetricPasswordResetRequest, "tenantauth_password_reset_request_total", "Password reset requests."},
	{MetricPasswordResetRateLimited, "tenantauth_password_reset_rate_limited_total", "Password reset requests over budget."},
	{MetricPasswordResetConfirmSuccess, "tenantauth_password_reset_confirm_success_total", "Completed password resets."},
	{MetricPasswordResetConfirmFailure, "tenantauth_password_reset_confirm_failure_total", "Failed password reset confirmations."},
	{MetricPasswordChangeSuccess, "tenantauth_password_change_success_total", "Successful password changes."},
	{MetricPasswordChangeInvalidOld, "tenantauth_password_change_invalid_old_total", "Password changes with a wrong current password."},
	{MetricPasswordChangeReuseRejected, "tenantauth_password_change_reuse_rejected_total", "Password changes rejected for reuse."},
	{MetricPasswordHashUpgraded, "tenantauth_password_hash_upgraded_total", "Stored hashes rehashed with current parameters."},
	{MetricUserCreated, "tenantauth_user_created_total", "Created users."},
	{MetricUserDeleted, "tenantauth_user_deleted_total", "Deleted users."},
}

// HistogramDefs lists the exported histograms.
var HistogramDefs = []Def{
	{MetricValidateLatency, "tenantauth_validate_latency_seconds", "Access token validation latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven buckets.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// CumulativeBuckets converts per-bucket counts into running totals.
// Missing or short input is treated as zeros.
func CumulativeBuckets(buckets []uint64) [HistogramBucketCount]uint64 {
	var out [HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < HistogramBucketCount; i++ {
		if i < len(buckets) {
			running += buckets[i]
		}
		out[i] = running
	}
	return out
}
