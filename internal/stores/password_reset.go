package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resetRecordVersionV1 = 1
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetExpired          = errors.New("reset record expired")
	ErrResetSecretMismatch   = errors.New("reset secret mismatch")
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is the stored half of a reset token.
type PasswordResetRecord struct {
	UserID     string
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// PasswordResetStore keeps at most one outstanding reset token per user.
// Records outlive their expiry by a grace period so an expired token is
// reported as expired rather than unknown.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string, grace time.Duration) *PasswordResetStore {
	if prefix == "" {
		prefix = "tpr"
	}
	if grace <= 0 {
		grace = time.Hour
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
		grace:  grace,
		now:    time.Now,
	}
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":r:" + resetID
}

func (s *PasswordResetStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save stores record under resetID and drops the user's previous token.
func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *PasswordResetRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("reset ttl must be positive")
	}
	record.ExpiresAt = s.now().Add(ttl).Unix()
	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return err
	}

	keys := []string{s.key(resetID), s.userKey(record.UserID)}
	err = resetSaveScript.Run(ctx, s.redis, keys, s.key(""), resetID, encoded, (ttl + s.grace).Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Restore puts back a record that Consume handed out, for when the password
// could not be stored. It does nothing once the record has expired or when
// the user requested a newer token in the meantime.
func (s *PasswordResetStore) Restore(ctx context.Context, resetID string, record *PasswordResetRecord) (bool, error) {
	remaining := time.Unix(record.ExpiresAt, 0).Sub(s.now())
	if remaining <= 0 {
		return false, nil
	}
	encoded, err := encodePasswordResetRecord(record)
	if err != nil {
		return false, err
	}
	keys := []string{s.key(resetID), s.userKey(record.UserID)}
	n, err := resetRestoreScript.Run(ctx, s.redis, keys, resetID, encoded, (remaining + s.grace).Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return n == 1, nil
}

// Consume validates providedHash and deletes the record on success. Mismatches
// count toward maxAttempts; the record is dropped once the budget is spent.
func (s *PasswordResetStore) Consume(ctx context.Context, resetID string, providedHash [32]byte, maxAttempts int) (*PasswordResetRecord, error) {
	const maxRetries = 4
	key := s.key(resetID)

	for i := 0; i < maxRetries; i++ {
		var matched *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrResetNotFound
				}
				return err
			}

			record, err := decodePasswordResetRecord(data)
			if err != nil {
				return err
			}
			userKey := s.userKey(record.UserID)

			if s.now().Unix() >= record.ExpiresAt {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key, userKey)
					return nil
				}); err != nil {
					return err
				}
				return ErrResetExpired
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
					if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key, userKey)
						return nil
					}); err != nil {
						return err
					}
					return ErrResetAttemptsExceeded
				}

				updated, err := encodePasswordResetRecord(record)
				if err != nil {
					return err
				}
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
					return nil
				}); err != nil {
					return err
				}
				return ErrResetSecretMismatch
			}

			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, userKey)
				return nil
			}); err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrResetNotFound),
				errors.Is(err, ErrResetExpired),
				errors.Is(err, ErrResetSecretMismatch),
				errors.Is(err, ErrResetAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrResetNotFound
}

// DeleteForUser drops the user's outstanding token, if any.
func (s *PasswordResetStore) DeleteForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	resetID, err := s.redis.Get(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if err := s.redis.Del(ctx, s.key(resetID), userKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// KEYS[1] record key, KEYS[2] user key. ARGV[1] is the record key prefix,
// ARGV[2] the reset id. The user's previous record is dropped in the same step.
var resetSaveScript = redis.NewScript(`
local previous = redis.call("GET", KEYS[2])
if previous and previous ~= ARGV[2] then
  redis.call("DEL", ARGV[1] .. previous)
end
redis.call("SET", KEYS[1], ARGV[3], "PX", ARGV[4])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[4])
return 1
`)

// KEYS[1] record key, KEYS[2] user key. The record only comes back while the
// user has no other outstanding token.
var resetRestoreScript = redis.NewScript(`
if redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3], "NX") then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`)

func encodePasswordResetRecord(record *PasswordResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if len(record.UserID) > 65535 {
		return nil, errors.New("reset record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodePasswordResetRecord(data []byte) (*PasswordResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	record := &PasswordResetRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
