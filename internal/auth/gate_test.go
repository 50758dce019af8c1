package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenValidation(t *testing.T) {
	gate := NewGate("secret", 0)
	token, expires, err := gate.IssueToken(42, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if expires.Before(time.Now()) {
		t.Fatalf("expires in past")
	}

	for _, credential := range []string{token, "Bearer " + token, "bearer " + token} {
		identity, err := gate.Verify(credential)
		if err != nil {
			t.Fatalf("Verify(%q): %v", credential[:10], err)
		}
		if identity.UserID != 42 {
			t.Fatalf("unexpected user %d", identity.UserID)
		}
	}
}

func TestDefaultTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gate := NewGate("secret", 0)
	gate.SetClock(func() time.Time { return now })
	_, expires, err := gate.IssueToken(1, 0)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !expires.Equal(now.Add(DefaultTokenTTL)) {
		t.Fatalf("expected default ttl, got %s", expires)
	}
}

func TestExpiredToken(t *testing.T) {
	gate := NewGate("secret", 0)
	token, _, err := gate.IssueToken(42, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	_, err = gate.Verify("Bearer " + token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Reason != "token expired" {
		t.Fatalf("expected expiry reason, got %v", err)
	}
}

func TestRejectsForeignSecret(t *testing.T) {
	other := NewGate("other-secret", 0)
	token, _, err := other.IssueToken(42, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := NewGate("secret", 0).Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRejectsTamperedSignature(t *testing.T) {
	gate := NewGate("secret", 0)
	token, _, err := gate.IssueToken(42, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := gate.Verify(tampered); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRejectsMalformedAndMissing(t *testing.T) {
	gate := NewGate("secret", 0)
	for _, credential := range []string{"", "Bearer ", "not-a-token", "Bearer a.b.c"} {
		if _, err := gate.Verify(credential); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Verify(%q): expected ErrUnauthorized, got %v", credential, err)
		}
	}
}

func TestRejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewGate("secret", 0).Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRejectsMissingUserClaim(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewGate("secret", 0).Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	t.Cleanup(func() { PasswordCost = bcrypt.DefaultCost })

	hashed, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(hashed, "hunter2"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if err := ComparePassword(hashed, "hunter3"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := HashPassword(""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("72-byte password should hash: %v", err)
	}
}
