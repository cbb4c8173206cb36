package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidRefreshToken indicates token not found or expired.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReplay indicates reuse of an already-rotated token.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

type refreshFamily struct {
	userID      string
	currentHash string
	expiry      time.Time
}

// MemoryRefreshTokenStore keeps refresh token families in memory. A family
// is created per login; rotation moves the family's current hash forward and
// presenting a stale hash revokes the whole family.
type MemoryRefreshTokenStore struct {
	mu          sync.Mutex
	families    map[string]refreshFamily // familyID -> family
	tokenFamily map[string]string        // tokenHash -> familyID
}

// NewMemoryRefreshTokenStore constructs an in-memory refresh token store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		families:    make(map[string]refreshFamily),
		tokenFamily: make(map[string]string),
	}
}

// NewToken issues a refresh token in a fresh family.
func (s *MemoryRefreshTokenStore) NewToken(userID string, ttl time.Duration) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}
	familyID, err := randomToken(16)
	if err != nil {
		return "", err
	}
	hash := tokenHash(token)
	s.mu.Lock()
	s.families[familyID] = refreshFamily{
		userID:      userID,
		currentHash: hash,
		expiry:      time.Now().UTC().Add(ttl),
	}
	s.tokenFamily[hash] = familyID
	s.mu.Unlock()
	return token, nil
}

// RotateToken validates the token and issues its successor in the same
// family.
func (s *MemoryRefreshTokenStore) RotateToken(token string, ttl time.Duration) (string, string, error) {
	hash := tokenHash(token)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	familyID, ok := s.tokenFamily[hash]
	if !ok {
		return "", "", ErrInvalidRefreshToken
	}
	family, ok := s.families[familyID]
	if !ok || now.After(family.expiry) {
		s.dropFamilyLocked(familyID)
		return "", "", ErrInvalidRefreshToken
	}
	if family.currentHash != hash {
		// A previously rotated token came back: assume theft, kill the family.
		s.dropFamilyLocked(familyID)
		return "", "", ErrRefreshTokenReplay
	}
	newToken, err := randomToken(32)
	if err != nil {
		return "", "", err
	}
	newHash := tokenHash(newToken)
	family.currentHash = newHash
	family.expiry = now.Add(ttl)
	s.families[familyID] = family
	s.tokenFamily[newHash] = familyID
	return family.userID, newToken, nil
}

// DeleteToken revokes the family the token belongs to.
func (s *MemoryRefreshTokenStore) DeleteToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if familyID, ok := s.tokenFamily[tokenHash(token)]; ok {
		s.dropFamilyLocked(familyID)
	}
	return nil
}

func (s *MemoryRefreshTokenStore) dropFamilyLocked(familyID string) {
	delete(s.families, familyID)
	for hash, fid := range s.tokenFamily {
		if fid == familyID {
			delete(s.tokenFamily, hash)
		}
	}
}

// RedisRefreshTokenStore stores refresh token families in Redis so rotation
// survives restarts and is shared across instances.
type RedisRefreshTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRefreshTokenStore connects to Redis with the given address.
func NewRedisRefreshTokenStore(addr, password string) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: "bookshelf:refresh",
	}
}

func (s *RedisRefreshTokenStore) familyKey(familyID string) string {
	return s.prefix + ":family:" + familyID
}

func (s *RedisRefreshTokenStore) tokenKey(hash string) string {
	return s.prefix + ":token:" + hash
}

// NewToken issues a refresh token in a fresh family.
func (s *RedisRefreshTokenStore) NewToken(userID string, ttl time.Duration) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}
	familyID, err := randomToken(16)
	if err != nil {
		return "", err
	}
	hash := tokenHash(token)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.familyKey(familyID), "user_id", userID, "current", hash)
	pipe.Expire(ctx, s.familyKey(familyID), ttl)
	pipe.Set(ctx, s.tokenKey(hash), familyID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// RotateToken validates the token and issues its successor in the same
// family. Reuse of a stale token revokes the family.
func (s *RedisRefreshTokenStore) RotateToken(token string, ttl time.Duration) (string, string, error) {
	hash := tokenHash(token)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	familyID, err := s.client.Get(ctx, s.tokenKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", fmt.Errorf("load refresh token: %w", err)
	}
	family, err := s.client.HGetAll(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return "", "", fmt.Errorf("load refresh family: %w", err)
	}
	if len(family) == 0 {
		_ = s.client.Del(ctx, s.tokenKey(hash)).Err()
		return "", "", ErrInvalidRefreshToken
	}
	if family["current"] != hash {
		_ = s.dropFamily(ctx, familyID)
		return "", "", ErrRefreshTokenReplay
	}

	newToken, err := randomToken(32)
	if err != nil {
		return "", "", err
	}
	newHash := tokenHash(newToken)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.familyKey(familyID), "current", newHash)
	pipe.Expire(ctx, s.familyKey(familyID), ttl)
	pipe.Set(ctx, s.tokenKey(newHash), familyID, ttl)
	// The stale hash stays resolvable at a shorter TTL so replay is detected
	// rather than reported as an unknown token.
	pipe.Expire(ctx, s.tokenKey(hash), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", fmt.Errorf("rotate refresh token: %w", err)
	}
	return family["user_id"], newToken, nil
}

// DeleteToken revokes the family the token belongs to.
func (s *RedisRefreshTokenStore) DeleteToken(token string) error {
	hash := tokenHash(token)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	familyID, err := s.client.Get(ctx, s.tokenKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	return s.dropFamily(ctx, familyID)
}

func (s *RedisRefreshTokenStore) dropFamily(ctx context.Context, familyID string) error {
	// Token keys expire on their own; without the family they no longer
	// resolve to a rotatable session.
	if err := s.client.Del(ctx, s.familyKey(familyID)).Err(); err != nil {
		return fmt.Errorf("drop refresh family: %w", err)
	}
	return nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
