package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/redis/go-redis/v9"
)

// SessionBlacklist invalidates every session of a license issued before a
// point in time. It backs license suspension and revocation.
type SessionBlacklist interface {
	// InvalidateLicense rejects sessions of key issued before now
	InvalidateLicense(ctx context.Context, key licensing.LicenseKey) error
	// IsInvalidated reports whether a session of key issued at issuedAt was invalidated
	IsInvalidated(ctx context.Context, key licensing.LicenseKey, issuedAt time.Time) (bool, error)
}

// RedisSessionBlacklist implements SessionBlacklist using Redis
type RedisSessionBlacklist struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisSessionBlacklist creates a blacklist on an existing client. ttl should
// cover the longest session lifetime.
func NewRedisSessionBlacklist(client redis.UniversalClient, ttl time.Duration) *RedisSessionBlacklist {
	return &RedisSessionBlacklist{
		client:    client,
		keyPrefix: "session:invalidated:",
		ttl:       ttl,
	}
}

func (b *RedisSessionBlacklist) licenseKey(key licensing.LicenseKey) string {
	return b.keyPrefix + key.String()
}

// InvalidateLicense stores the invalidation timestamp for the license
func (b *RedisSessionBlacklist) InvalidateLicense(ctx context.Context, key licensing.LicenseKey) error {
	ts := time.Now().Unix()
	if err := b.client.Set(ctx, b.licenseKey(key), ts, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return nil
}

// IsInvalidated checks the stored invalidation timestamp
func (b *RedisSessionBlacklist) IsInvalidated(ctx context.Context, key licensing.LicenseKey, issuedAt time.Time) (bool, error) {
	val, err := b.client.Get(ctx, b.licenseKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session invalidation: %w", err)
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("malformed invalidation timestamp: %w", err)
	}
	// JWT iat has second precision, so a token issued in the same second
	// as the invalidation is rejected too.
	return issuedAt.Unix() <= ts, nil
}

// InMemorySessionBlacklist implements SessionBlacklist for single-process
// deployments and tests
type InMemorySessionBlacklist struct {
	mu          sync.RWMutex
	invalidated map[licensing.LicenseKey]time.Time
	now         func() time.Time
}

// NewInMemorySessionBlacklist creates an in-memory blacklist
func NewInMemorySessionBlacklist() *InMemorySessionBlacklist {
	return &InMemorySessionBlacklist{
		invalidated: make(map[licensing.LicenseKey]time.Time),
		now:         time.Now,
	}
}

// InvalidateLicense records the invalidation time
func (b *InMemorySessionBlacklist) InvalidateLicense(_ context.Context, key licensing.LicenseKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated[key] = b.now()
	return nil
}

// IsInvalidated compares issuedAt with the recorded invalidation time
func (b *InMemorySessionBlacklist) IsInvalidated(_ context.Context, key licensing.LicenseKey, issuedAt time.Time) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	at, ok := b.invalidated[key]
	if !ok {
		return false, nil
	}
	return issuedAt.Unix() <= at.Unix(), nil
}
