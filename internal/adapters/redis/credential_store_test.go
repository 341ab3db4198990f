package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/libsession/internal/adapters/credstore"
	"github.com/target/libsession/internal/ports"
	"github.com/target/libsession/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestCredentialStore_SetGetDelete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "access_token", "cred", time.Now().Add(30*time.Minute)))

	got, err := store.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, "cred", got)

	ttl, err := client.TTL(ctx, DefaultKeyPrefix+"access_token").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 29*time.Minute)

	require.NoError(t, store.Delete(ctx, "access_token", "token"))
	_, err = store.Get(ctx, "access_token")
	assert.ErrorIs(t, err, ports.ErrKeyNotFound)
}

func TestCredentialStore_GetNonExistent(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(client)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrKeyNotFound)
}

func TestCredentialStore_NoExpiry(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStoreWithPrefix(client, "custom:")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "token", "forever", time.Time{}))
	ttl, err := client.TTL(ctx, "custom:token").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "key without expiry reports -1")
}

func TestCredentialStore_RejectsExpired(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewCredentialStore(client)
	err := store.Set(context.Background(), "access_token", "old", time.Now().Add(-time.Second))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCredentialStore_BacksSlot(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	slot, err := credstore.NewSlot(credstore.SlotOptions{KV: NewCredentialStore(client)})
	require.NoError(t, err)
	ctx := context.Background()

	cred := testutil.MintCredential(t, time.Now().Add(time.Hour), "member")
	slot.Save(ctx, cred)

	got, ok := slot.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, cred, got)

	slot.Clear(ctx)
	_, ok = slot.Load(ctx)
	assert.False(t, ok)
}
