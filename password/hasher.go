package password

// Hasher hashes new passwords with argon2id and verifies both argon2id and
// legacy bcrypt digests.
type Hasher struct {
	argon  *Argon2
	legacy Bcrypt
}

// NewHasher builds a Hasher with the given argon2id parameters.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a, legacy: Bcrypt{maxBytes: a.cfg.MaxPasswordBytes}}, nil
}

func (h *Hasher) Hash(plain string) (string, error) {
	return h.argon.Hash(plain)
}

func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return h.legacy.Verify(plain, encoded)
	}
	return h.argon.Verify(plain, encoded)
}

// NeedsUpgrade is true for every bcrypt digest and for argon2id digests with
// parameters below the configured cost.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return true, nil
	}
	return h.argon.NeedsUpgrade(encoded)
}
