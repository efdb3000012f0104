package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndParse(t *testing.T) {
	tok, err := SignJWT("desktop", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sub, err := ParseJWT(tok, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub != "desktop" {
		t.Fatalf("expected subject desktop, got %q", sub)
	}
}

func TestParse_Rejects(t *testing.T) {
	good, _ := SignJWT("desktop", "s3cret", time.Hour)
	expired, _ := SignJWT("desktop", "s3cret", -time.Minute)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "desktop", "iss": "chatcore"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("none token: %v", err)
	}

	cases := map[string]struct{ tok, secret string }{
		"wrong secret": {good, "other"},
		"expired":      {expired, "s3cret"},
		"alg none":     {unsigned, "s3cret"},
		"garbage":      {"not.a.jwt", "s3cret"},
	}
	for name, tc := range cases {
		if _, err := ParseJWT(tc.tok, tc.secret); err != ErrInvalidToken {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestSign_NoSecret(t *testing.T) {
	if _, err := SignJWT("desktop", "", time.Hour); err == nil {
		t.Fatalf("expected error without secret")
	}
}
