package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signedToken builds a real HS256 token with the given claims. The
// signing key is irrelevant: Inspect never verifies signatures.
func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestInspect(t *testing.T) {
	issued := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	expires := issued.Add(24 * time.Hour)

	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-42",
		"email": "dev@example.com",
		"iat":   issued.Unix(),
		"exp":   expires.Unix(),
	})

	info, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	if info.Subject != "user-42" {
		t.Errorf("Subject = %q", info.Subject)
	}
	if info.Email != "dev@example.com" {
		t.Errorf("Email = %q", info.Email)
	}
	if !info.IssuedAt.Equal(issued) {
		t.Errorf("IssuedAt = %v, want %v", info.IssuedAt, issued)
	}
	if !info.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", info.ExpiresAt, expires)
	}
}

func TestInspectMinimalClaims(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})

	info, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Subject != "user-1" {
		t.Errorf("Subject = %q", info.Subject)
	}
	if !info.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", info.ExpiresAt)
	}
	if info.Expired(time.Now()) {
		t.Error("token without exp must never report expired")
	}
}

func TestInspectEmptyToken(t *testing.T) {
	if _, err := Inspect(""); !errors.Is(err, ErrNoToken) {
		t.Errorf("Inspect(\"\") error = %v, want ErrNoToken", err)
	}
}

func TestInspectOpaqueToken(t *testing.T) {
	if _, err := Inspect("not-a-jwt"); err == nil {
		t.Error("Inspect() expected error for opaque token")
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		info TokenInfo
		want bool
	}{
		{"future expiry", TokenInfo{ExpiresAt: now.Add(time.Hour)}, false},
		{"past expiry", TokenInfo{ExpiresAt: now.Add(-time.Hour)}, true},
		{"no expiry", TokenInfo{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
