package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/libsession/config"
)

func TestRedisOptions_Direct(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantAddr string
		wantPass string
		wantDB   int
		wantTLS  bool
	}{
		{"host and port", config.RedisConfig{URI: "cache:6379", Password: "pw", DB: 3}, "cache:6379", "pw", 3, false},
		{"url with db", config.RedisConfig{URI: "redis://:secret@cache:6380/2", DB: 5}, "cache:6380", "secret", 2, false},
		{"url without db", config.RedisConfig{URI: "rediss://cache:6380", Password: "pw", DB: 4}, "cache:6380", "pw", 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := redisOptions(tt.cfg)
			require.NoError(t, err)
			assert.False(t, target.cluster)
			assert.Equal(t, []string{tt.wantAddr}, target.opts.Addrs)
			assert.Equal(t, tt.wantPass, target.opts.Password)
			assert.Equal(t, tt.wantDB, target.opts.DB)
			assert.Equal(t, tt.wantTLS, target.opts.TLSConfig != nil)
			assert.Equal(t, tt.wantAddr, target.desc)
			assert.NotContains(t, target.desc, "secret")
		})
	}
}

func TestRedisOptions_Cluster(t *testing.T) {
	target, err := redisOptions(config.RedisConfig{
		URI: "redis://:pw@seed:7000", UseCluster: true, ClusterNodes: []string{" a:7000 ", "", "b:7001"}, DB: 2,
	})
	require.NoError(t, err)
	assert.True(t, target.cluster)
	assert.Equal(t, []string{"a:7000", "b:7001"}, target.opts.Addrs)
	assert.Equal(t, "pw", target.opts.Password)
	assert.Zero(t, target.opts.DB)
	assert.Equal(t, "cluster:a:7000,b:7001", target.desc)

	target, err = redisOptions(config.RedisConfig{URI: "seed:7000", UseCluster: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"seed:7000"}, target.opts.Addrs, "falls back to URI")
}

func TestRedisOptions_Sentinel(t *testing.T) {
	target, err := redisOptions(config.RedisConfig{
		URI: "ignored:6379", Password: "pw", UseSentinel: true,
		SentinelNodes: []string{"s1:26379", "s2:26379"}, SentinelMasterName: "primary", SentinelPassword: "spw",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1:26379", "s2:26379"}, target.opts.Addrs)
	assert.Equal(t, "primary", target.opts.MasterName)
	assert.Equal(t, "spw", target.opts.SentinelPassword)
	assert.Equal(t, "pw", target.opts.Password)
	assert.Equal(t, "sentinel:primary", target.desc)
}

func TestRedisOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
	}{
		{"direct without uri", config.RedisConfig{}},
		{"cluster without nodes", config.RedisConfig{UseCluster: true}},
		{"sentinel without nodes", config.RedisConfig{UseSentinel: true, SentinelMasterName: "m"}},
		{"sentinel without master", config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s:1"}}},
		{"bad url", config.RedisConfig{URI: "redis://cache:notaport/x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := redisOptions(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestConnectRedis_FailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectRedis(ctx, RedisDeps{Config: config.RedisConfig{URI: "127.0.0.1:1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis 127.0.0.1:1")
}
