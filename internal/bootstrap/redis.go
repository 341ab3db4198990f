package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/libsession/config"
)

const redisPingTimeout = 5 * time.Second

// RedisDeps contains what ConnectRedis needs.
type RedisDeps struct {
	Config config.RedisConfig
	Logger *slog.Logger
}

// ConnectRedis builds a client for the configured mode and pings it.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(ctx context.Context, deps RedisDeps) (redis.UniversalClient, error) {
	target, err := redisOptions(deps.Config)
	if err != nil {
		return nil, err
	}
	desc := target.desc
	client := target.client()

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis %s: %w", desc, pingErr)
	}

	if deps.Logger != nil {
		deps.Logger.InfoContext(ctx, "redis connected", "target", desc, "key_prefix", deps.Config.KeyPrefix)
	}
	return client, nil
}

// redisTarget is a resolved connection plan. desc names the target for logs
// and never includes credentials.
type redisTarget struct {
	opts    *redis.UniversalOptions
	cluster bool
	desc    string
}

//nolint:ireturn // see ConnectRedis.
func (t redisTarget) client() redis.UniversalClient {
	if t.cluster {
		// A single seed address would otherwise yield a plain client.
		return redis.NewClusterClient(t.opts.Cluster())
	}
	return redis.NewUniversalClient(t.opts)
}

// redisOptions maps cfg onto go-redis universal options.
//
// Cluster mode uses ClusterNodes, falling back to the address in URI.
// Sentinel mode uses SentinelNodes and SentinelMasterName. Direct mode accepts
// host:port or a redis:// / rediss:// URL.
func redisOptions(cfg config.RedisConfig) (redisTarget, error) {
	base, err := redisEndpoint(cfg)
	if err != nil {
		return redisTarget{}, err
	}
	opts := &redis.UniversalOptions{
		Addrs:     []string{base.Addr},
		Username:  base.Username,
		Password:  base.Password,
		DB:        base.DB,
		TLSConfig: base.TLSConfig,
	}

	switch {
	case cfg.UseCluster:
		if nodes := trimmed(cfg.ClusterNodes); len(nodes) > 0 {
			opts.Addrs = nodes
		}
		if len(opts.Addrs) == 0 || opts.Addrs[0] == "" {
			return redisTarget{}, errors.New("redis cluster mode needs CLUSTER_NODES or URI")
		}
		// Cluster clients have a single database.
		opts.DB = 0
		return redisTarget{opts: opts, cluster: true, desc: "cluster:" + strings.Join(opts.Addrs, ",")}, nil

	case cfg.UseSentinel:
		nodes := trimmed(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return redisTarget{}, errors.New("redis sentinel mode needs SENTINEL_NODES")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return redisTarget{}, errors.New("redis sentinel mode needs SENTINEL_MASTER_NAME")
		}
		opts.Addrs = nodes
		opts.MasterName = strings.TrimSpace(cfg.SentinelMasterName)
		opts.SentinelPassword = cfg.SentinelPassword
		return redisTarget{opts: opts, desc: "sentinel:" + opts.MasterName}, nil

	default:
		if base.Addr == "" {
			return redisTarget{}, errors.New("redis direct mode needs URI")
		}
		return redisTarget{opts: opts, desc: base.Addr}, nil
	}
}

// redisEndpoint parses URI. A bare host:port takes Password and DB from cfg;
// a URL may override them.
func redisEndpoint(cfg config.RedisConfig) (*redis.Options, error) {
	uri := strings.TrimSpace(cfg.URI)
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		return &redis.Options{Addr: uri, Password: cfg.Password, DB: cfg.DB}, nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.Password == "" {
		opt.Password = cfg.Password
	}
	if !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(uri, "rediss://"), "redis://"), "/") {
		opt.DB = cfg.DB
	}
	return opt, nil
}

func trimmed(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
