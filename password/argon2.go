package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"

	// DefaultMaxPasswordBytes caps the input fed to the KDF.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrPasswordTooLong is returned for inputs above MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password: input too long")
	// ErrEmptyPassword is returned when hashing an empty string.
	ErrEmptyPassword = errors.New("password: empty input")
)

// Config holds argon2id cost parameters.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the cost parameters used for new hashes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes passwords with argon2id and encodes them in PHC form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
type Argon2 struct {
	cfg Config
}

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	sum         []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.Memory < minMemoryKB {
		return nil, fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("password salt length must be >= %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return nil, fmt.Errorf("password key length must be >= %d", minKeyLength)
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a fresh salted hash. Strength rules are applied by Policy, not here.
func (a *Argon2) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	if len(plain) > a.cfg.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(plain), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	var b strings.Builder
	b.WriteString(argon2Prefix)
	fmt.Fprintf(&b, "v=%d$m=%d,t=%d,p=%d$", argon2.Version, a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(sum))
	return b.String(), nil
}

// Verify recomputes the hash with the stored parameters and compares in constant time.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	if len(plain) > a.cfg.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	p, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	sum := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.sum)))
	return subtle.ConstantTimeCompare(sum, p.sum) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters than the current config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(p.sum)) != a.cfg.KeyLength, nil
}

func decodeArgon2(encoded string) (*argon2Params, error) {
	if !strings.HasPrefix(encoded, argon2Prefix) {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrMalformedHash)
	}
	fields := strings.Split(strings.TrimPrefix(encoded, argon2Prefix), "$")
	if len(fields) != 4 {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(fields[0], "v="))
	if err != nil || !strings.HasPrefix(fields[0], "v=") {
		return nil, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	p := &argon2Params{}
	seen := 0
	for _, kv := range strings.Split(fields[1], ",") {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		switch key {
		case "m":
			if uint32(v) < minMemoryKB {
				return nil, fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			p.memory = uint32(v)
		case "t":
			if uint32(v) < minTimeCost {
				return nil, fmt.Errorf("%w: time", ErrMalformedHash)
			}
			p.time = uint32(v)
		case "p":
			if v < uint64(minParallelism) || v > 255 {
				return nil, fmt.Errorf("%w: parallelism", ErrMalformedHash)
			}
			p.parallelism = uint8(v)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, key)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	if p.salt, err = decodeB64(fields[2]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if p.sum, err = decodeB64(fields[3]); err != nil || len(p.sum) == 0 {
		return nil, fmt.Errorf("%w: digest", ErrMalformedHash)
	}
	return p, nil
}

// decodeB64 accepts both padded and unpadded standard base64 so hashes
// written by other argon2 libraries still verify.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
