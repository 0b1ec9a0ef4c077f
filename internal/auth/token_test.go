package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/tileworld/internal/domain"
)

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", "tileworld", time.Hour)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := newTestTokens(t)
	for _, id := range []domain.UserID{"alice", "0b8a3f4e-1111-4c1d-9a77-2b0c5d1e9f00"} {
		tok, err := svc.Issue(id)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		got, err := svc.Verify(tok)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got != id {
			t.Fatalf("expected subject %q, got %q", id, got)
		}
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	svc := newTestTokens(t)

	expired := newTestTokens(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredTok, err := expired.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, _ := NewTokenService("other-secret", "tileworld", time.Hour)
	foreignTok, _ := other.Issue("alice")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice", Issuer: "tileworld"})
	noneTok, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"empty":     "",
		"malformed": "not-a-token",
		"expired":   expiredTok,
		"foreign":   foreignTok,
		"alg none":  noneTok,
	}
	for name, tok := range cases {
		if _, err := svc.Verify(tok); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("", "x", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Verify(hash, "hunter22") {
		t.Fatalf("expected password to verify")
	}
	if h.Verify(hash, "hunter23") {
		t.Fatalf("expected wrong password to fail")
	}
}
