package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access-token algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"

	// MinHMACSecretBytes is the smallest accepted HS256 secret.
	MinHMACSecretBytes = 32
)

var (
	ErrMissingKID = errors.New("jwt: missing kid")
	ErrUnknownKID = errors.New("jwt: unknown kid")
	ErrFutureIAT  = errors.New("jwt: iat too far in the future")
)

// Config controls signing and validation of access tokens.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for HS256, or the Ed25519 private key
	// (raw or PEM) for Ed25519.
	PrivateKey   []byte
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
	KeyID        string
	VerifyKeys   map[string][]byte
}

// Subject is the identity snapshot embedded into an access token.
type Subject struct {
	UserID         string
	RoleID         string
	CompanyID      string
	TenantUnscoped bool
	SessionID      string
}

// AccessClaims is the JWT payload.
type AccessClaims struct {
	UID string `json:"uid"`
	RID string `json:"rid"`
	CID string `json:"cid,omitempty"`
	GBL bool   `json:"gbl,omitempty"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Subject returns the identity carried by the claims.
func (c *AccessClaims) Subject() Subject {
	return Subject{
		UserID:         c.UID,
		RoleID:         c.RID,
		CompanyID:      c.CID,
		TenantUnscoped: c.GBL,
		SessionID:      c.SID,
	}
}

// Manager signs and verifies access tokens. It is safe for concurrent use.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < MinHMACSecretBytes {
			return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinHMACSecretBytes)
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" || len(key) < MinHMACSecretBytes {
				return nil, fmt.Errorf("invalid hs256 verify key for kid %q", kid)
			}
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := edPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := edPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := edPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{cfg: cfg, now: time.Now}, nil
}

// AccessTTL is the lifetime stamped on new tokens.
func (m *Manager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

// CreateAccess signs a short-lived token for sub.
func (m *Manager) CreateAccess(sub Subject) (string, error) {
	if sub.UserID == "" || sub.RoleID == "" || sub.SessionID == "" {
		return "", errors.New("access subject requires user, role and session")
	}

	now := m.now()
	claims := AccessClaims{
		UID: sub.UserID,
		RID: sub.RoleID,
		CID: sub.CompanyID,
		GBL: sub.TenantUnscoped,
		SID: sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}

	key, err := m.signingKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// ParseAccess verifies signature, expiry and the configured issuer/audience.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, m.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UID == "" || claims.SID == "" || claims.RID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.cfg.MaxFutureIAT)) {
		return nil, ErrFutureIAT
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)

	if len(m.cfg.VerifyKeys) > 0 {
		if kid == "" {
			return nil, ErrMissingKID
		}
		key, ok := m.cfg.VerifyKeys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return m.verifyKey(key)
	}
	if m.cfg.KeyID != "" {
		if kid == "" {
			return nil, ErrMissingKID
		}
		if kid != m.cfg.KeyID {
			return nil, ErrUnknownKID
		}
	}

	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.PrivateKey, nil
	}
	return m.verifyKey(m.cfg.PublicKey)
}

func (m *Manager) method() jwt.SigningMethod {
	if m.cfg.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signingKey() (interface{}, error) {
	if m.cfg.SigningMethod == MethodHS256 {
		return m.cfg.PrivateKey, nil
	}
	if len(m.cfg.PrivateKey) == 0 {
		return nil, errors.New("ed25519 private key not configured")
	}
	return edPrivateKey(m.cfg.PrivateKey)
}

func (m *Manager) verifyKey(key []byte) (interface{}, error) {
	if m.cfg.SigningMethod == MethodHS256 {
		return key, nil
	}
	return edPublicKey(key)
}

func edPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	k, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return k, nil
}

func edPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	k, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return k, nil
}
