package internal

import (
	"testing"
)

// FuzzDecodeToken feeds arbitrary strings to the opaque token decoder.
func FuzzDecodeToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	id, err := NewTokenID()
	if err == nil {
		secret, err := NewSecret()
		if err == nil {
			token, err := EncodeToken(id.String(), secret)
			if err == nil {
				f.Add(token)
			}
		}
	}

	f.Add("!!!not-base64!!!")
	f.Add("dG9vLXNob3J0")

	f.Fuzz(func(t *testing.T, input string) {
		tokenID, secret, err := DecodeToken(input)
		if err != nil {
			return
		}

		reEncoded, err := EncodeToken(tokenID, secret)
		if err != nil {
			t.Fatalf("re-encode decoded token: %v", err)
		}

		id2, secret2, err := DecodeToken(reEncoded)
		if err != nil {
			t.Fatalf("roundtrip decode failed: %v", err)
		}
		if id2 != tokenID {
			t.Errorf("roundtrip id mismatch: %q vs %q", id2, tokenID)
		}
		if secret2 != secret {
			t.Error("roundtrip secret mismatch")
		}
	})
}
