package store

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryRefreshTokenStoreRotate(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-1", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	userID, next, err := s.RotateToken(token, time.Minute)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id %q", userID)
	}
	if next == "" || next == token {
		t.Fatalf("expected a fresh token")
	}
}

func TestMemoryRefreshTokenStoreDetectsReplay(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-2", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	_, next, err := s.RotateToken(token, time.Minute)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrRefreshTokenReplay) {
		t.Fatalf("expected replay error, got %v", err)
	}
	// Replay kills the whole family, including the current token.
	if _, _, err := s.RotateToken(next, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after family revocation, got %v", err)
	}
}

func TestMemoryRefreshTokenStoreDelete(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-3", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := s.DeleteToken(token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected invalid token after delete, got %v", err)
	}
}

func TestMemoryRefreshTokenStoreExpiry(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-4", -time.Second)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if _, _, err := s.RotateToken(token, time.Minute); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestMemoryRefreshTokenStoreConcurrentRotate(t *testing.T) {
	s := NewMemoryRefreshTokenStore()

	token, err := s.NewToken("user-5", time.Minute)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	var wg sync.WaitGroup
	okCount := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.RotateToken(token, time.Minute); err == nil {
				okCount <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(okCount)
	succeeded := 0
	for range okCount {
		succeeded++
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", succeeded)
	}
}
