// Package rate provides Redis fixed-window counters used to throttle OTP
// issuance, password-reset requests and refresh attempts.
package rate
