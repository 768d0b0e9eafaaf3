package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"tradie-marketplace/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAddr(t *testing.T) {
	cfg := config.RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	assert.Equal(t, "redis.example.com:6380", cfg.Addr())
}

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)

	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s)}
	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	hc := NewHealthCheck(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))

	s.Close()
	assert.Error(t, hc.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s)}
	s.Close()

	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, client)
}

func mustPort(t *testing.T, s *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	return port
}

func TestNewClient_AppliesPoolSize(t *testing.T) {
	s := miniredis.RunT(t)

	cfg := config.RedisConfig{Host: s.Host(), Port: mustPort(t, s), PoolSize: 4, DialTimeout: time.Second}
	client, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 4, client.Options().PoolSize)
	assert.Equal(t, time.Second, client.Options().DialTimeout)
}
