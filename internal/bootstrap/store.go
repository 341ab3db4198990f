package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/libsession/config"
	"github.com/target/libsession/internal/adapters/credstore"
	redisadapter "github.com/target/libsession/internal/adapters/redis"
	"github.com/target/libsession/internal/ports"
)

// StoreDeps groups what OpenCredentialStore needs. RedisClient is only used
// for the redis store; when nil, one is connected from Redis.
type StoreDeps struct {
	Store       config.StoreConfig
	Redis       config.RedisConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// CredentialStore is an opened credential slot and the resources behind it.
type CredentialStore struct {
	Slot *credstore.Slot
	Kind config.StoreKind
	// Location describes where credentials live, for diagnostics.
	Location string
	closers  []func() error
}

// Close releases the backing store.
func (s *CredentialStore) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// OpenCredentialStore builds the configured KeyValueStore and wraps it in a Slot.
func OpenCredentialStore(ctx context.Context, deps StoreDeps) (*CredentialStore, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kind, err := deps.Store.Kind()
	if err != nil {
		return nil, err
	}

	out := &CredentialStore{Kind: kind}
	var kv ports.KeyValueStore

	switch kind {
	case config.StoreMemory:
		kv = credstore.NewMemoryStore(nil)
		out.Location = "memory"

	case config.StoreSQLite:
		db, openErr := credstore.OpenSQLite(ctx, credstore.SQLiteConfig{Path: deps.Store.SQLitePath})
		if openErr != nil {
			return nil, fmt.Errorf("open sqlite credential store: %w", openErr)
		}
		kv = db
		out.Location = db.Path()
		out.closers = append(out.closers, db.Close)

	case config.StoreRedis:
		client := deps.RedisClient
		if client == nil {
			client, err = ConnectRedis(ctx, RedisDeps{Config: deps.Redis, Logger: logger})
			if err != nil {
				return nil, fmt.Errorf("connect redis credential store: %w", err)
			}
			out.closers = append(out.closers, client.Close)
		}
		kv = redisadapter.NewCredentialStoreWithPrefix(client, deps.Redis.KeyPrefix)
		out.Location = "redis:" + deps.Redis.KeyPrefix
	}

	slot, err := credstore.NewSlot(credstore.SlotOptions{
		KV:         kv,
		PrimaryKey: deps.Store.PrimaryKey,
		LegacyKey:  deps.Store.LegacyKey,
		Logger:     logger,
	})
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("credential slot: %w", err)
	}
	out.Slot = slot

	logger.Debug("credential store ready", "kind", kind, "location", out.Location)
	return out, nil
}
