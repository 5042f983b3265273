package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// TokenID identifies a server-side record (session, reset token, OTP challenge).
type TokenID [16]byte

const (
	secretSize   = 32
	tokenRawSize = len(TokenID{}) + secretSize
)

var (
	errTokenIDSize = errors.New("invalid token id size")
	errTokenSize   = errors.New("invalid token size")
)

func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (id TokenID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseTokenID(value string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errTokenIDSize
	}

	copy(id[:], raw)
	return id, nil
}

func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the only form of a secret that is ever persisted.
func HashSecret(secret [secretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeToken packs id||secret into an opaque base64url string.
func EncodeToken(id string, secret [secretSize]byte) (string, error) {
	tid, err := ParseTokenID(id)
	if err != nil {
		return "", err
	}

	var raw [tokenRawSize]byte
	copy(raw[:len(tid)], tid[:])
	copy(raw[len(tid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeToken(token string) (string, [secretSize]byte, error) {
	var secret [secretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != tokenRawSize {
		return "", secret, errTokenSize
	}

	var id TokenID
	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id.String(), secret, nil
}

// NewOTP returns a uniformly distributed decimal code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashOTP binds a code to its owner and purpose so equal codes for
// different users never share a digest.
func HashOTP(scope, code string) [32]byte {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(code))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
