package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateToken_CarriesSubject(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	userID := "user-123"

	tok, err := GenerateToken(userID, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Subject != userID {
		t.Fatalf("subject mismatch: got %q want %q", claims.Subject, userID)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestGenerateToken_Unique(t *testing.T) {
	t.Parallel()

	a, err := GenerateToken("u1", []byte("k"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	b, err := GenerateToken("u1", []byte("k"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if a == b {
		t.Fatalf("two tokens for the same user must differ")
	}
}

func TestUnverifiedSubject(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", []byte("right-secret"), -time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	// neither signature nor expiry are checked
	if got := UnverifiedSubject(tok); got != "u2" {
		t.Fatalf("got %q want u2", got)
	}
	if got := UnverifiedSubject("not.a.jwt"); got != "" {
		t.Fatalf("expected empty subject for malformed token, got %q", got)
	}
	if got := UnverifiedSubject("3f1c9a7e0b"); got != "" {
		t.Fatalf("expected empty subject for opaque string, got %q", got)
	}
}
