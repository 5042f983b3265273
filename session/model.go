package session

import (
	"strconv"
	"time"
)

// State of a stored session record.
type State string

const (
	StateActive State = "active"
	// StateRotated marks a tombstone left behind by Rotate. It is kept until
	// the original expiry so a replayed refresh token can be recognised.
	StateRotated State = "rotated"
)

// Session is one refresh-token holder. Rotation never mutates a live session
// in place: it creates a new record and turns the old one into a tombstone.
type Session struct {
	SessionID      string
	UserID         string
	RoleID         string
	CompanyID      string
	TenantUnscoped bool

	RefreshHash [32]byte
	UserAgent   string
	ClientIP    string

	// FamilyCreatedAt is the creation time of the first session in the
	// rotation chain and bounds the absolute lifetime of the family.
	FamilyCreatedAt int64
	CreatedAt       int64
	ExpiresAt       int64
	LastSeenAt      int64

	State     State
	RotatedTo string
}

// Active reports whether s is usable at now given the idle window.
func (s *Session) Active(now time.Time, idle time.Duration) bool {
	if s == nil || s.State != StateActive {
		return false
	}
	unix := now.Unix()
	if s.ExpiresAt <= unix {
		return false
	}
	if idle > 0 && s.LastSeenAt+int64(idle/time.Second) <= unix {
		return false
	}
	return true
}

func (s *Session) fields() []interface{} {
	gbl := "0"
	if s.TenantUnscoped {
		gbl = "1"
	}
	return []interface{}{
		"uid", s.UserID,
		"rid", s.RoleID,
		"cid", s.CompanyID,
		"gbl", gbl,
		"rh", string(s.RefreshHash[:]),
		"ua", s.UserAgent,
		"ip", s.ClientIP,
		"fam", s.FamilyCreatedAt,
		"created", s.CreatedAt,
		"exp", s.ExpiresAt,
		"seen", s.LastSeenAt,
		"state", string(StateActive),
		"next", "",
	}
}

func fromHash(sessionID string, h map[string]string) (*Session, bool) {
	uid := h["uid"]
	if uid == "" {
		return nil, false
	}
	sess := &Session{
		SessionID:      sessionID,
		UserID:         uid,
		RoleID:         h["rid"],
		CompanyID:      h["cid"],
		TenantUnscoped: h["gbl"] == "1",
		UserAgent:      h["ua"],
		ClientIP:       h["ip"],
		State:          State(h["state"]),
		RotatedTo:      h["next"],
	}
	copy(sess.RefreshHash[:], h["rh"])

	var err error
	if sess.FamilyCreatedAt, err = strconv.ParseInt(h["fam"], 10, 64); err != nil {
		return nil, false
	}
	if sess.CreatedAt, err = strconv.ParseInt(h["created"], 10, 64); err != nil {
		return nil, false
	}
	if sess.ExpiresAt, err = strconv.ParseInt(h["exp"], 10, 64); err != nil {
		return nil, false
	}
	if sess.LastSeenAt, err = strconv.ParseInt(h["seen"], 10, 64); err != nil {
		return nil, false
	}
	return sess, true
}

// pairsToMap decodes a flat HGETALL reply returned from a Lua script.
func pairsToMap(raw []interface{}) map[string]string {
	out := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, _ := raw[i].(string)
		switch v := raw[i+1].(type) {
		case string:
			out[k] = v
		case []byte:
			out[k] = string(v)
		case int64:
			out[k] = strconv.FormatInt(v, 10)
		}
	}
	return out
}
