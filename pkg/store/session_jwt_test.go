package store

import (
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func newTestSessionStore(t *testing.T, ttl time.Duration) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore(testJWTSecret, ttl, NewMemoryTokenRevoker(), JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s := newTestSessionStore(t, time.Minute)

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("expected user-1, got %q ok=%v", userID, ok)
	}
}

func TestJWTSessionRejectsTampering(t *testing.T) {
	s := newTestSessionStore(t, time.Minute)

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, ok, _ := s.GetUserIDByToken(tampered); ok {
		t.Fatalf("tampered token must not verify")
	}
}

func TestJWTSessionLogoutRevokes(t *testing.T) {
	s := newTestSessionStore(t, time.Minute)

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || ok {
		t.Fatalf("revoked token must not verify (ok=%v err=%v)", ok, err)
	}
}

func TestJWTSessionSecretTooShort(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Minute, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected error for weak secret")
	}
}
