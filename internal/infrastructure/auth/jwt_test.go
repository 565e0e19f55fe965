package auth

import (
	"context"
	"testing"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	masterKey = "MAST-ER00-0000-0001"
	tenantKey = "TENA-NT00-0000-0001"
)

func newTestService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                  "test-secret-that-is-long-enough-for-hs256",
		Issuer:                  "licensehub-test",
		AccessTokenExpiration:   time.Hour,
		ImpersonationExpiration: 10 * time.Minute,
	}, masterKey)
}

func TestJWTService_Session(t *testing.T) {
	svc := newTestService()

	t.Run("tenant session is not master", func(t *testing.T) {
		token, exp, err := svc.IssueSession(tenantKey, "")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

		claims, err := svc.Validate(token)
		require.NoError(t, err)
		actor := svc.Actor(claims, "10.0.0.1")
		assert.Equal(t, licensing.LicenseKey(tenantKey), actor.LicenseKey)
		assert.Equal(t, tenantKey, actor.ActorID)
		assert.Equal(t, "10.0.0.1", actor.IP)
		assert.False(t, actor.IsMaster)
	})

	t.Run("master comes from configuration", func(t *testing.T) {
		token, _, err := svc.IssueSession(masterKey, "ops@example.com")
		require.NoError(t, err)

		claims, err := svc.Validate(token)
		require.NoError(t, err)
		actor := svc.Actor(claims, "")
		assert.True(t, actor.IsMaster)
		assert.Equal(t, "ops@example.com", actor.ActorID)
	})

	t.Run("expired", func(t *testing.T) {
		past := newTestService()
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := past.IssueSession(tenantKey, "")
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService(config.JWTConfig{Secret: "another-secret-another-secret-xx", Issuer: "licensehub-test", AccessTokenExpiration: time.Hour}, masterKey)
		token, _, err := other.IssueSession(tenantKey, "")
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWTService_Impersonation(t *testing.T) {
	svc := newTestService()
	master := licensing.Actor{LicenseKey: masterKey, ActorID: "ops@example.com", IsMaster: true}

	t.Run("acts as target without master rights", func(t *testing.T) {
		token, exp, err := svc.IssueImpersonation(master, tenantKey)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)

		claims, err := svc.Validate(token)
		require.NoError(t, err)
		actor := svc.Actor(claims, "")
		assert.Equal(t, licensing.LicenseKey(tenantKey), actor.LicenseKey)
		assert.Equal(t, "ops@example.com", actor.ActorID)
		assert.Equal(t, masterKey, actor.ImpersonatedBy)
		assert.False(t, actor.IsMaster)
	})

	t.Run("impersonating the master grants nothing extra", func(t *testing.T) {
		token, _, err := svc.IssueImpersonation(master, masterKey)
		require.NoError(t, err)
		claims, err := svc.Validate(token)
		require.NoError(t, err)
		assert.False(t, svc.Actor(claims, "").IsMaster)
	})

	t.Run("non master cannot impersonate", func(t *testing.T) {
		_, _, err := svc.IssueImpersonation(licensing.Actor{LicenseKey: tenantKey}, masterKey)
		assert.ErrorIs(t, err, ErrNotMaster)
	})
}

func TestInMemorySessionBlacklist(t *testing.T) {
	ctx := context.Background()
	b := NewInMemorySessionBlacklist()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	ok, err := b.IsInvalidated(ctx, tenantKey, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.InvalidateLicense(ctx, tenantKey))

	ok, err = b.IsInvalidated(ctx, tenantKey, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.IsInvalidated(ctx, tenantKey, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.IsInvalidated(ctx, masterKey, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}
