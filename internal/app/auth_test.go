package app

import (
	"errors"
	"testing"
)

func TestRegisterLoginFlow(t *testing.T) {
	a, _, _ := newTestApp(t)

	user, access, refresh, err := a.Register("reader", "reader@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "reader@example.com" || user.Username != "reader" {
		t.Fatalf("unexpected user %+v", user)
	}
	if access == "" || refresh == "" {
		t.Fatalf("register should issue both tokens")
	}

	resolved, ok := a.UserFromToken(access)
	if !ok || resolved.ID != user.ID {
		t.Fatalf("access token should resolve the registered user")
	}

	if _, _, _, err := a.Login("reader@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, _, err := a.Login("reader@example.com", "wrong password!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, _, err := a.Login("nobody@example.com", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	a, _, _ := newTestApp(t)

	if _, _, _, err := a.Register("first", "dup@example.com", "correct horse battery"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, _, err := a.Register("second", "dup@example.com", "correct horse battery"); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	a, _, _ := newTestApp(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"missing email", "reader", "", "correct horse battery"},
		{"missing password", "reader", "reader@example.com", ""},
		{"missing username", "", "reader@example.com", "correct horse battery"},
		{"not an email", "reader", "not-an-email", "correct horse battery"},
		{"weak password", "reader", "reader@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := a.Register(tt.username, tt.email, tt.password); err == nil {
				t.Fatalf("expected registration to fail")
			}
		})
	}
}

func TestRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	a, _, _ := newTestApp(t)

	user, _, refresh, err := a.Register("reader", "reader@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rotatedUser, access2, refresh2, err := a.Refresh(refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotatedUser.ID != user.ID {
		t.Fatalf("refresh resolved wrong user")
	}
	if access2 == "" || refresh2 == "" || refresh2 == refresh {
		t.Fatalf("refresh should issue a fresh token pair")
	}

	// Replaying the consumed token must fail.
	if _, _, _, err := a.Refresh(refresh); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	a, _, _ := newTestApp(t)

	_, access, refresh, err := a.Register("reader", "reader@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.Logout(access, refresh); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.UserFromToken(access); ok {
		t.Fatalf("access token should be revoked after logout")
	}
	if _, _, _, err := a.Refresh(refresh); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh token should be dead after logout, got %v", err)
	}
}
