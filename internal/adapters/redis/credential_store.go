package redis

// Package redis provides the Redis-backed key/value store behind the credential slot.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/libsession/internal/ports"
)

// DefaultKeyPrefix namespaces credential keys.
const DefaultKeyPrefix = "libsession:"

// ErrExpired is returned by Set when expiresAt has already passed.
var ErrExpired = errors.New("credential is expired")

// CredentialStore is a Redis-based ports.KeyValueStore.
// Entries expire with the credential through Redis TTLs.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ ports.KeyValueStore = (*CredentialStore)(nil)

// NewCredentialStore creates a store using DefaultKeyPrefix.
func NewCredentialStore(client redis.UniversalClient) *CredentialStore {
	return NewCredentialStoreWithPrefix(client, DefaultKeyPrefix)
}

// NewCredentialStoreWithPrefix creates a store with a custom key prefix.
func NewCredentialStoreWithPrefix(client redis.UniversalClient, prefix string) *CredentialStore {
	return &CredentialStore{client: client, prefix: prefix, now: time.Now}
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ports.ErrKeyNotFound
	}
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Set stores value under key. A zero expiresAt stores without TTL.
func (s *CredentialStore) Set(ctx context.Context, key, value string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(s.now())
		if ttl <= 0 {
			return ErrExpired
		}
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			prefixed = append(prefixed, s.prefix+k)
		}
	}
	if len(prefixed) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
