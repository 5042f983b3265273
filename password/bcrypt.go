package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt verifies hashes imported from systems that stored bcrypt digests.
// New hashes are never produced with it; every match reports NeedsUpgrade.
type Bcrypt struct {
	maxBytes int
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// Verify compares plain against a bcrypt digest.
func (b Bcrypt) Verify(plain, encoded string) (bool, error) {
	max := b.maxBytes
	if max <= 0 {
		max = DefaultMaxPasswordBytes
	}
	if len(plain) > max {
		return false, ErrPasswordTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrMalformedHash
	}
}
