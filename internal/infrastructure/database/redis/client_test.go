package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&RedisConfig{Mode: "standalone", Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestApplyDefaults(t *testing.T) {
	cfg := &RedisConfig{}
	applyDefaults(cfg)
	assert.Positive(t, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestBuildTLSConfig(t *testing.T) {
	tlsCfg, err := buildTLSConfig(&RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	tlsCfg, err = buildTLSConfig(&RedisConfig{TLSEnabled: true, TLSInsecure: true})
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)

	_, err = buildTLSConfig(&RedisConfig{TLSEnabled: true, TLSCAFile: "/does/not/exist.pem"})
	assert.Error(t, err)
}

func TestNewClient_ConnectionFailure(t *testing.T) {
	_, err := NewClient(&RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1}, nil)
	assert.Error(t, err)
}

func TestClient_Close(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.ErrorIs(t, client.Ping(ctx), ErrClientClosed)
	assert.ErrorIs(t, client.Get(ctx, "k").Err(), ErrClientClosed)
}
