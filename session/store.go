package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every transport or script failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned for unknown, revoked or forged session ids.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the absolute lifetime has elapsed.
	ErrExpired = errors.New("session expired")
	// ErrIdleExpired is returned when the session was not used within the idle window.
	ErrIdleExpired = errors.New("session idle timeout")
	// ErrSecretMismatch is returned when a live session id is presented with the wrong secret.
	ErrSecretMismatch = errors.New("session secret mismatch")
	// ErrReused is returned when a rotated-away refresh token is presented again.
	// Every session of the owning user has been revoked by the time it is returned.
	ErrReused = errors.New("session refresh token reused")
)

// Config tunes a Store.
type Config struct {
	// Prefix namespaces all keys. Default "ts".
	Prefix string
	// IdleTimeout expires sessions that are not touched or rotated in time. Zero disables it.
	IdleTimeout time.Duration
	// RefreshTTL is the lifetime granted on create and on each rotation.
	RefreshTTL time.Duration
	// MaxLifetime caps a rotation family measured from its first session. Zero disables it.
	MaxLifetime time.Duration
}

// Store keeps sessions as Redis hashes plus a per-user index set.
type Store struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

// NewStore creates a Store on rdb.
func NewStore(rdb redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "ts"
	}
	return &Store{redis: rdb, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source; used by tests and the load tester.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) sessionPrefix() string { return s.cfg.Prefix + ":s:" }
func (s *Store) userPrefix() string    { return s.cfg.Prefix + ":u:" }

func (s *Store) key(sessionID string) string  { return s.sessionPrefix() + sessionID }
func (s *Store) userKey(userID string) string { return s.userPrefix() + userID }

func idleSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Create stores sess with a fresh absolute expiry of RefreshTTL.
// SessionID, UserID, RoleID and RefreshHash must be set by the caller.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SessionID == "" || sess.UserID == "" {
		return errors.New("session id and user id are required")
	}
	now := s.now().Unix()
	sess.CreatedAt = now
	sess.LastSeenAt = now
	if sess.FamilyCreatedAt == 0 {
		sess.FamilyCreatedAt = now
	}
	sess.ExpiresAt = now + int64(s.cfg.RefreshTTL/time.Second)
	sess.State = StateActive
	if sess.ExpiresAt <= now {
		return errors.New("session refresh ttl must be positive")
	}

	key := s.key(sess.SessionID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, sess.fields()...)
		pipe.ExpireAt(ctx, key, time.Unix(sess.ExpiresAt, 0))
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the stored record without touching it. Tombstones are returned
// as-is; callers decide with Session.Active.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	h, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess, ok := fromHash(sessionID, h)
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Touch extends the idle window after checking absolute and idle expiry.
// Expired sessions are deleted as a side effect.
func (s *Store) Touch(ctx context.Context, sessionID string) (*Session, error) {
	res, err := touchLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		s.userPrefix(), sessionID, s.now().Unix(), idleSeconds(s.cfg.IdleTimeout),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	code, _ := res[0].(int64)
	switch code {
	case statusOK:
		raw, _ := res[1].([]interface{})
		sess, ok := fromHash(sessionID, pairsToMap(raw))
		if !ok {
			return nil, ErrNotFound
		}
		return sess, nil
	case statusExpired:
		return nil, ErrExpired
	case statusIdle:
		return nil, ErrIdleExpired
	default:
		return nil, ErrNotFound
	}
}

// Rotate atomically swaps the session identified by oldID for a new session
// newID holding nextHash. It succeeds at most once per oldID: the old record
// becomes a tombstone and any later presentation of its secret revokes every
// session of the user and returns ErrReused.
func (s *Store) Rotate(ctx context.Context, oldID string, providedHash [32]byte, newID string, nextHash [32]byte) (*Session, error) {
	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(oldID), s.key(newID)},
		s.sessionPrefix(),
		s.userPrefix(),
		oldID,
		newID,
		providedHash[:],
		nextHash[:],
		s.now().Unix(),
		idleSeconds(s.cfg.IdleTimeout),
		int64(s.cfg.RefreshTTL/time.Second),
		int64(s.cfg.MaxLifetime/time.Second),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", ErrRedisUnavailable)
	}

	code, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate status", ErrRedisUnavailable)
	}
	switch code {
	case statusOK:
		if len(res) < 3 {
			return nil, fmt.Errorf("%w: missing rotated session", ErrRedisUnavailable)
		}
		raw, _ := res[2].([]interface{})
		sess, ok := fromHash(newID, pairsToMap(raw))
		if !ok {
			return nil, fmt.Errorf("%w: corrupt rotated session", ErrRedisUnavailable)
		}
		return sess, nil
	case statusReused:
		uid, _ := res[1].(string)
		return &Session{SessionID: oldID, UserID: uid, State: StateRotated}, ErrReused
	case statusExpired:
		return nil, ErrExpired
	case statusIdle:
		return nil, ErrIdleExpired
	case statusMismatch:
		return nil, ErrSecretMismatch
	case statusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, code)
	}
}

// Invalidate deletes one session. Unknown ids are not an error.
func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	if err := invalidateLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.userPrefix(), sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidateAllForUser deletes every indexed session of userID and returns how many were removed.
func (s *Store) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := invalidateAllLua.Run(ctx, s.redis, nil, s.sessionPrefix(), s.userPrefix(), userID).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// ListActive returns the user's sessions that pass both expiry checks.
// Stale index entries are pruned on the way.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		sess, ok := fromHash(ids[i], cmd.Val())
		if !ok || !sess.Active(now, s.cfg.IdleTimeout) {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return out, nil
}

// Ping checks Redis availability and reports latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
