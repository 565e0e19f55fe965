package licensing

import (
	"errors"
	"testing"
	"time"

	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLicense(t *testing.T) *License {
	t.Helper()
	l, err := NewLicense("ABCD-EFGH-1234-5678", "Owner@Example.com", "Acme", PlanPro, ProductSet{ProductChatbot}, testNow)
	require.NoError(t, err)
	return l
}

func TestParseLicenseKey(t *testing.T) {
	t.Run("normalises case and whitespace", func(t *testing.T) {
		k, err := ParseLicenseKey("  abcd-efgh-1234-5678 ")
		require.NoError(t, err)
		assert.Equal(t, LicenseKey("ABCD-EFGH-1234-5678"), k)
	})

	t.Run("rejects wrong group sizes", func(t *testing.T) {
		_, err := ParseLicenseKey("ABC-EFGH-1234-5678")
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("rejects punctuation", func(t *testing.T) {
		_, err := ParseLicenseKey("AB_D-EFGH-1234-5678")
		assert.Error(t, err)
	})
}

func TestNewLicense(t *testing.T) {
	t.Run("creates pending license", func(t *testing.T) {
		l := newTestLicense(t)
		assert.Equal(t, LicenseStatusPending, l.Status)
		assert.Equal(t, "owner@example.com", l.Email)
		assert.Equal(t, 1, l.Version)
		assert.True(t, l.IsEntitledTo(ProductChatbot))
		assert.False(t, l.IsEntitledTo(ProductOutreach))
	})

	t.Run("fails with empty email", func(t *testing.T) {
		_, err := NewLicense("ABCD-EFGH-1234-5678", " ", "Acme", PlanFree, nil, testNow)
		assert.Contains(t, err.Error(), "Email cannot be empty")
	})

	t.Run("fails with unknown plan", func(t *testing.T) {
		_, err := NewLicense("ABCD-EFGH-1234-5678", "a@b.c", "Acme", Plan("gold"), nil, testNow)
		assert.Error(t, err)
	})
}

func TestLicenseLifecycle(t *testing.T) {
	t.Run("pending to active to suspended and back", func(t *testing.T) {
		l := newTestLicense(t)
		require.NoError(t, l.Activate(testNow))
		require.NoError(t, l.Suspend(testNow))
		require.NoError(t, l.Activate(testNow))
		assert.True(t, l.IsActive())
		assert.Equal(t, 4, l.Version)
	})

	t.Run("pending cannot be suspended", func(t *testing.T) {
		l := newTestLicense(t)
		err := l.Suspend(testNow)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
		assert.Equal(t, LicenseStatusPending, l.Status)
	})

	t.Run("expired cannot be reactivated", func(t *testing.T) {
		l := newTestLicense(t)
		require.NoError(t, l.Activate(testNow))
		require.NoError(t, l.Expire(testNow))
		assert.ErrorIs(t, l.Activate(testNow), shared.ErrInvalidState)
	})

	t.Run("revoked is terminal", func(t *testing.T) {
		l := newTestLicense(t)
		require.NoError(t, l.Activate(testNow))
		changed, err := l.Revoke(testNow)
		require.NoError(t, err)
		assert.True(t, changed)
		require.NotNil(t, l.RevokedAt)

		for _, next := range AllLicenseStatuses {
			if next == LicenseStatusRevoked {
				continue
			}
			assert.Error(t, l.TransitionTo(next, testNow), "revoked -> %s", next)
		}
	})

	t.Run("revoking twice is a no-op", func(t *testing.T) {
		l := newTestLicense(t)
		_, err := l.Revoke(testNow)
		require.NoError(t, err)
		version := l.Version

		changed, err := l.Revoke(testNow.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, version, l.Version)
		assert.Equal(t, testNow, *l.RevokedAt)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		l := newTestLicense(t)
		assert.Error(t, l.TransitionTo(LicenseStatus("archived"), testNow))
	})
}

func TestLicenseProducts(t *testing.T) {
	l := newTestLicense(t)

	require.NoError(t, l.EnableProduct(ProductOutreach, testNow))
	require.NoError(t, l.EnableProduct(ProductOutreach, testNow))
	assert.Equal(t, []string{"chatbot", "outreach"}, l.Products.Strings())

	require.NoError(t, l.DisableProduct(ProductChatbot, testNow))
	assert.Equal(t, []string{"outreach"}, l.Products.Strings())

	_, err := l.Revoke(testNow)
	require.NoError(t, err)
	assert.True(t, errors.Is(l.EnableProduct(ProductSetup, testNow), shared.ErrInvalidState))
}

func TestParseStatusValues(t *testing.T) {
	_, err := ParseLicenseStatus("ACTIVE")
	assert.Error(t, err, "status parsing is case sensitive")

	s, err := ParseKeyStatus("inactive")
	require.NoError(t, err)
	assert.Equal(t, KeyStatusInactive, s)

	_, err = ParseKeyStatus("disabled")
	assert.Error(t, err)
}

func TestNewProductSet(t *testing.T) {
	set, err := NewProductSet([]string{"setup", "chatbot", "setup"})
	require.NoError(t, err)
	assert.Equal(t, []string{"chatbot", "setup"}, set.Strings())

	_, err = NewProductSet([]string{"chatbot", "crm"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
