package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks access tokens that were invalidated before expiry
// (logout). Entries only need to live as long as the token itself.
type TokenRevoker interface {
	Revoke(token string, ttl time.Duration) error
	IsRevoked(token string) (bool, error)
}

// MemoryTokenRevoker keeps revocations in memory, for tests and single-node
// development.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time // tokenHash -> expiry
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{revoked: make(map[string]time.Time)}
}

func (r *MemoryTokenRevoker) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	r.revoked[tokenHash(token)] = time.Now().UTC().Add(ttl)
	r.mu.Unlock()
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(token string) (bool, error) {
	hash := tokenHash(token)
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.revoked[hash]
	if !ok {
		return false, nil
	}
	if now.After(expiry) {
		delete(r.revoked, hash)
		return false, nil
	}
	return true, nil
}

// RedisTokenRevoker shares the revocation list across instances.
type RedisTokenRevoker struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: "bookshelf:revoked",
	}
}

func (r *RedisTokenRevoker) key(token string) string {
	return r.prefix + ":" + tokenHash(token)
}

func (r *RedisTokenRevoker) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.key(token), "1", ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Get(ctx, r.key(token)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
