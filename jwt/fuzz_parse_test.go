package jwt

import (
	"strings"
	"testing"
	"time"
)

// FuzzJWTParseAccess feeds arbitrary strings to the access-token parser.
func FuzzJWTParseAccess(f *testing.F) {
	mgr, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte(strings.Repeat("f", MinHMACSecretBytes)),
		Issuer:        "fuzz-test",
		RequireIAT:    true,
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, err := mgr.CreateAccess(Subject{UserID: "u", RoleID: "r", SessionID: "s"})
	if err == nil {
		f.Add(valid)
	}
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ1In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.ParseAccess(input)
		if err != nil {
			return
		}
		if claims.UID == "" || claims.SID == "" {
			t.Fatalf("accepted token without identity: %q", input)
		}
	})
}
