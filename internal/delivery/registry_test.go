package delivery_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/mediaqueue/internal/delivery"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected client.
func setupRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisRegistry_ChannelExists(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	registry := delivery.NewRedisRegistry(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	exists, err := registry.ChannelExists(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, exists, "unknown guild is assumed to have the channel")

	require.NoError(t, registry.SyncChannels(ctx, 1, []int64{100, 101}))

	exists, err = registry.ChannelExists(ctx, 1, 101)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, registry.SyncChannels(ctx, 1, []int64{100}))
	exists, err = registry.ChannelExists(ctx, 1, 101)
	require.NoError(t, err)
	assert.False(t, exists, "deleted channel must be reported missing")
}

func TestRedisRegistry_Unreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	registry := delivery.NewRedisRegistry(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	exists, err := registry.ChannelExists(context.Background(), 1, 100)
	assert.Error(t, err)
	assert.True(t, exists)
}

func TestStatusMirror(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	mirror := delivery.NewStatusMirror(rdb, time.Minute)

	_, ok, err := mirror.GetStatus(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mirror.SetStatus(ctx, 5, "Downloading… **40%**"))
	text, ok, err := mirror.GetStatus(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Downloading… **40%**", text)

	ttl, err := rdb.TTL(ctx, delivery.JobStatusKey(5)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
