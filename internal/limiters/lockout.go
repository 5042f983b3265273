package limiters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/internal/ids"
	"github.com/redis/go-redis/v9"
)

// Subject selects which failure series is counted.
type Subject string

const (
	SubjectEmail   Subject = "email"
	SubjectAddress Subject = "addr"
)

// Tier locks both subjects for Cooldown once Failures failures fall in the window.
// Short cooldowns act as escalating delays, long ones as temporary blocks.
type Tier struct {
	Failures int
	Cooldown time.Duration
}

// LockoutConfig holds the failure window and the escalation tiers.
// Retention bounds how far back Count can see; it defaults to
// DefaultRetention and is never shorter than Window.
type LockoutConfig struct {
	Enabled   bool
	Prefix    string
	Window    time.Duration
	Retention time.Duration
	Tiers     []Tier
}

// DefaultRetention is how long failures stay countable when no retention is set.
const DefaultRetention = 24 * time.Hour

var (
	// ErrLocked is returned by Check while a block is in force.
	ErrLocked = errors.New("login locked")
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// Decision describes the state after a recorded failure.
type Decision struct {
	EmailFailures   int
	AddressFailures int
	LockedFor       time.Duration
}

// FailureTracker records failed logins and enforces LockoutConfig.
type FailureTracker struct {
	redis  redis.UniversalClient
	config LockoutConfig
	now    func() time.Time
}

// NewFailureTracker normalises cfg (tiers sorted ascending) and returns a tracker.
func NewFailureTracker(redisClient redis.UniversalClient, cfg LockoutConfig) *FailureTracker {
	if cfg.Prefix == "" {
		cfg.Prefix = "tfl"
	}
	tiers := append([]Tier(nil), cfg.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Failures < tiers[j].Failures })
	cfg.Tiers = tiers
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Retention < cfg.Window {
		cfg.Retention = cfg.Window
	}
	return &FailureTracker{redis: redisClient, config: cfg, now: time.Now}
}

func (l *FailureTracker) seriesKey(subject Subject, value string) string {
	return l.config.Prefix + ":w:" + string(subject) + ":" + normalize(value)
}

func (l *FailureTracker) forgiveKey(email string) string {
	return l.config.Prefix + ":f:" + normalize(email)
}

func (l *FailureTracker) blockKey(subject Subject, value string) string {
	return l.config.Prefix + ":b:" + string(subject) + ":" + normalize(value)
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Check returns ErrLocked and the remaining cooldown when either subject is blocked.
func (l *FailureTracker) Check(ctx context.Context, email, addr string) (time.Duration, error) {
	if l == nil || !l.config.Enabled {
		return 0, nil
	}

	keys := make([]string, 0, 2)
	if email != "" {
		keys = append(keys, l.blockKey(SubjectEmail, email))
	}
	if addr != "" {
		keys = append(keys, l.blockKey(SubjectAddress, addr))
	}

	var longest time.Duration
	for _, key := range keys {
		ttl, err := l.redis.PTTL(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		if ttl > longest {
			longest = ttl
		}
	}
	if longest > 0 {
		return longest, ErrLocked
	}
	return 0, nil
}

// RecordFailure appends a failure for both subjects. The counts in the
// returned Decision cover the lockout window; for the email subject they start
// after the last Forgive. With lockout enabled the highest tier reached is
// applied.
func (l *FailureTracker) RecordFailure(ctx context.Context, email, addr string) (Decision, error) {
	if l == nil {
		return Decision{}, nil
	}

	now := l.now()
	var d Decision
	if email != "" {
		n, err := l.append(ctx, SubjectEmail, email, now)
		if err != nil {
			return d, err
		}
		d.EmailFailures = n
	}
	if addr != "" {
		n, err := l.append(ctx, SubjectAddress, addr, now)
		if err != nil {
			return d, err
		}
		d.AddressFailures = n
	}

	if !l.config.Enabled {
		return d, nil
	}
	d.LockedFor = l.cooldownFor(d.EmailFailures)
	if c := l.cooldownFor(d.AddressFailures); c > d.LockedFor {
		d.LockedFor = c
	}
	if d.LockedFor <= 0 {
		return d, nil
	}

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if email != "" && l.cooldownFor(d.EmailFailures) > 0 {
			pipe.Set(ctx, l.blockKey(SubjectEmail, email), d.EmailFailures, l.cooldownFor(d.EmailFailures))
		}
		if addr != "" && l.cooldownFor(d.AddressFailures) > 0 {
			pipe.Set(ctx, l.blockKey(SubjectAddress, addr), d.AddressFailures, l.cooldownFor(d.AddressFailures))
		}
		return nil
	})
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return d, nil
}

// Count returns failures for the subject within window ending now. It does
// not depend on whether lockout is enabled and ignores Forgive; windows longer
// than the retention see only the retained entries.
func (l *FailureTracker) Count(ctx context.Context, subject Subject, value string, window time.Duration) (int, error) {
	if l == nil || value == "" {
		return 0, nil
	}
	now := l.now()
	min := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	n, err := l.redis.ZCount(ctx, l.seriesKey(subject, value), "("+min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(n), nil
}

// Forgive marks a successful login for email: failures recorded before now
// stop counting towards the email lockout and any email block is lifted. The
// failure series itself is untouched, and the address series keeps counting
// so one good account cannot launder a spraying client.
func (l *FailureTracker) Forgive(ctx context.Context, email string) error {
	if l == nil || !l.config.Enabled || email == "" {
		return nil
	}
	now := l.now().UnixMilli()
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.forgiveKey(email), now, l.config.Window)
		pipe.Del(ctx, l.blockKey(SubjectEmail, email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (l *FailureTracker) append(ctx context.Context, subject Subject, value string, now time.Time) (int, error) {
	keys := []string{l.seriesKey(subject, value)}
	if subject == SubjectEmail {
		keys = append(keys, l.forgiveKey(value))
	}
	n, err := appendFailureScript.Run(ctx, l.redis, keys,
		now.UnixMilli(),
		ids.At(now),
		l.config.Retention.Milliseconds(),
		l.config.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(n), nil
}

func (l *FailureTracker) cooldownFor(failures int) time.Duration {
	var cooldown time.Duration
	for _, tier := range l.config.Tiers {
		if failures >= tier.Failures {
			cooldown = tier.Cooldown
		}
	}
	return cooldown
}

// KEYS[1] is the failure series, KEYS[2] the optional forgive marker.
// Entries older than the retention are dropped; the return value counts
// entries inside the window that are newer than the marker.
var appendFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local retention = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
redis.call("ZADD", KEYS[1], now, ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. (now - retention))
redis.call("PEXPIRE", KEYS[1], retention)
local from = now - window
if #KEYS > 1 then
  local forgiven = tonumber(redis.call("GET", KEYS[2]) or "")
  if forgiven and forgiven > from then
    from = forgiven
  end
end
return redis.call("ZCOUNT", KEYS[1], "(" .. from, "+inf")
`)
