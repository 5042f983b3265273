package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPNotFound         = errors.New("otp challenge not found")
	ErrOTPExpired          = errors.New("otp challenge expired")
	ErrOTPMismatch         = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

const (
	otpStatusNotFound int64 = 0
	otpStatusExpired  int64 = 1
	otpStatusMismatch int64 = 2
	otpStatusExceeded int64 = 3
	otpStatusOK       int64 = 5
)

// Expired challenges linger for a grace period after expiry so that a late
// code can be told apart from one that never existed.
const otpVerifyScript = `
local key = KEYS[1]
local provided = ARGV[1]
local now = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])

local f = redis.call("HMGET", key, "cid", "hash", "exp", "attempts")
if not f[1] then
  return {0}
end
local exp = tonumber(f[3])
local attempts = tonumber(f[4]) or 0
if not exp or exp <= now then
  redis.call("DEL", key)
  return {1}
end
if f[2] ~= provided then
  attempts = attempts + 1
  if max_attempts > 0 and attempts >= max_attempts then
    redis.call("DEL", key)
    return {3}
  end
  redis.call("HSET", key, "attempts", attempts)
  return {2}
end
redis.call("DEL", key)
return {5, f[1]}
`

const otpRevokeScript = `
if redis.call("HGET", KEYS[1], "cid") == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	otpVerifyLua = redis.NewScript(otpVerifyScript)
	otpRevokeLua = redis.NewScript(otpRevokeScript)
)

// OTPChallenge is the persisted form of an issued code.
type OTPChallenge struct {
	ChallengeID string
	UserID      string
	Purpose     string
	CodeHash    [32]byte
	ExpiresAt   int64
	Attempts    int
}

// OTPStore keeps at most one challenge per (user, purpose).
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewOTPStore creates an OTPStore. grace controls how long expired challenges
// are remembered; zero uses one minute.
func NewOTPStore(redisClient redis.UniversalClient, prefix string, grace time.Duration) *OTPStore {
	if prefix == "" {
		prefix = "totp"
	}
	if grace <= 0 {
		grace = time.Minute
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
		grace:  grace,
		now:    time.Now,
	}
}

func (s *OTPStore) key(userID, purpose string) string {
	return s.prefix + ":" + purpose + ":" + userID
}

// Issue stores c, replacing any unconsumed challenge for the same user and purpose.
func (s *OTPStore) Issue(ctx context.Context, c *OTPChallenge, ttl time.Duration) error {
	if c == nil || c.UserID == "" || c.Purpose == "" || c.ChallengeID == "" {
		return errors.New("otp challenge requires user, purpose and id")
	}
	if ttl <= 0 {
		return errors.New("otp ttl must be positive")
	}
	c.ExpiresAt = s.now().Add(ttl).Unix()
	c.Attempts = 0

	key := s.key(c.UserID, c.Purpose)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"cid", c.ChallengeID,
			"hash", string(c.CodeHash[:]),
			"exp", c.ExpiresAt,
			"attempts", 0,
		)
		pipe.Expire(ctx, key, ttl+s.grace)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Verify checks codeHash against the live challenge and consumes it on match.
// It returns the consumed challenge id.
func (s *OTPStore) Verify(ctx context.Context, userID, purpose string, codeHash [32]byte, maxAttempts int) (string, error) {
	res, err := otpVerifyLua.Run(ctx, s.redis,
		[]string{s.key(userID, purpose)},
		codeHash[:], s.now().Unix(), maxAttempts,
	).Slice()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	code, _ := res[0].(int64)
	switch code {
	case otpStatusOK:
		cid, _ := res[1].(string)
		return cid, nil
	case otpStatusExpired:
		return "", ErrOTPExpired
	case otpStatusMismatch:
		return "", ErrOTPMismatch
	case otpStatusExceeded:
		return "", errors.Join(ErrOTPMismatch, ErrOTPAttemptsExceeded)
	default:
		return "", ErrOTPNotFound
	}
}

// Revoke deletes the challenge only if it is still challengeID. Used to roll
// back an issuance whose delivery failed.
func (s *OTPStore) Revoke(ctx context.Context, userID, purpose, challengeID string) error {
	if err := otpRevokeLua.Run(ctx, s.redis, []string{s.key(userID, purpose)}, challengeID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// DeleteForUser removes challenges of every listed purpose.
func (s *OTPStore) DeleteForUser(ctx context.Context, userID string, purposes ...string) error {
	if len(purposes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(purposes))
	for _, p := range purposes {
		keys = append(keys, s.key(userID, p))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}
