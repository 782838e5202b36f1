//go:build integration

package icon

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func TestCacheRoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	c := NewCache(redisClient, time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "example.com")
	assert.ErrorIs(t, err, ErrCacheMiss, "fresh cache should miss")

	want := &Entry{
		Data:        []byte{0x00, 0x01, 0x02, 0x03},
		ContentType: "image/png",
		CachedAt:    time.Now(),
	}
	require.NoError(t, c.Set(ctx, "example.com", want))

	got, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want.Data, got.Data), "cached data mismatch")
	assert.Equal(t, want.ContentType, got.ContentType)
}

func TestCacheTTLExpiry(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	c := NewCache(redisClient, time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short.example", &Entry{
		Data:        []byte("icon"),
		ContentType: "image/x-icon",
		CachedAt:    time.Now(),
	}))

	_, err := c.Get(ctx, "short.example")
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	_, err = c.Get(ctx, "short.example")
	assert.ErrorIs(t, err, ErrCacheMiss, "entry should expire with the TTL")
}

func TestCacheKeysAreHostScoped(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	c := NewCache(redisClient, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a.example", &Entry{Data: []byte("a"), ContentType: "image/png"}))
	require.NoError(t, c.Set(ctx, "b.example", &Entry{Data: []byte("b"), ContentType: "image/png"}))

	got, err := c.Get(ctx, "a.example")
	require.NoError(t, err)
	assert.Equal(t, "a", string(got.Data))
}
