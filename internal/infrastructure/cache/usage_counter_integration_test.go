//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/licensehub/backend/internal/infrastructure/auth"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestUsageCounter_Redis(t *testing.T) {
	client := startRedis(t)
	counter := NewUsageCounter(client)
	ctx := context.Background()
	now := time.Now().UTC()

	_, ok, err := counter.Current(ctx, "AAAA-AAAA-AAAA-AAAA", usage.MetricComputeSeconds, now)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, v := range []string{"1.5", "0.25"} {
		require.NoError(t, counter.Incr(ctx, usage.Record{
			LicenseKey: "AAAA-AAAA-AAAA-AAAA",
			Metric:     usage.MetricComputeSeconds,
			Value:      decimal.RequireFromString(v),
			At:         now,
		}))
	}

	got, ok, err := counter.Current(ctx, "AAAA-AAAA-AAAA-AAAA", usage.MetricComputeSeconds, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, decimal.RequireFromString("1.75").Equal(got), got.String())

	ttl, err := client.TTL(ctx, counter.key("AAAA-AAAA-AAAA-AAAA", usage.MetricComputeSeconds, now)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 47*time.Hour)
}

func TestSessionBlacklist_Redis(t *testing.T) {
	client := startRedis(t)
	b := auth.NewRedisSessionBlacklist(client, time.Hour)
	ctx := context.Background()

	issued := time.Now().Add(-time.Minute)
	ok, err := b.IsInvalidated(ctx, "BBBB-BBBB-BBBB-BBBB", issued)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.InvalidateLicense(ctx, "BBBB-BBBB-BBBB-BBBB"))

	ok, err = b.IsInvalidated(ctx, "BBBB-BBBB-BBBB-BBBB", issued)
	require.NoError(t, err)
	assert.True(t, ok)
}
