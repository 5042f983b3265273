// Package limiters tracks failed logins and decides progressive lockouts.
//
// Failures are appended to Redis sorted sets per email and per client address
// so that recent failures can be counted over any window up to the retention.
// The series are only trimmed by age. When the count inside the lockout window
// reaches a configured tier, a block key with the tier's cooldown is written
// for both subjects. A successful login sets a separate marker that restarts
// the email count for lockout purposes without touching the series.
//
// All methods are nil-safe: a nil *FailureTracker never locks anybody out.
package limiters
