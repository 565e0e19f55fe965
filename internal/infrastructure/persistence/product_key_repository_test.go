package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/persistence/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormProductKeyRepository(t *testing.T) {
	db := sqlitetest.New(t)
	licenses := NewGormLicenseRepository(db)
	repo := NewGormProductKeyRepository(db)
	ctx := context.Background()

	l := newTestLicense(t, "CCCC-0000-0000-0001", licensing.ProductChatbot)
	require.NoError(t, licenses.Create(ctx, l))

	key := licensing.NewProductKey("cb_first", l.Key, licensing.ProductChatbot, testNow)
	key.Metadata["source"] = "test"
	require.NoError(t, repo.Create(ctx, key))

	t.Run("find by value keeps metadata", func(t *testing.T) {
		found, err := repo.FindByKey(ctx, "cb_first")
		require.NoError(t, err)
		assert.Equal(t, l.Key, found.LicenseKey)
		assert.Equal(t, "test", found.Metadata["source"])
		assert.True(t, found.IsActive())
	})

	t.Run("second active key for the pair is rejected", func(t *testing.T) {
		err := repo.Create(ctx, licensing.NewProductKey("cb_second", l.Key, licensing.ProductChatbot, testNow))
		assert.ErrorIs(t, err, licensing.ErrDuplicateKey)
	})

	t.Run("reused value is rejected", func(t *testing.T) {
		err := repo.Create(ctx, licensing.NewProductKey("cb_first", l.Key, licensing.ProductOutreach, testNow))
		assert.ErrorIs(t, err, licensing.ErrDuplicateKey)
	})

	t.Run("deactivate then issue again", func(t *testing.T) {
		n, err := repo.DeactivateAll(ctx, l.Key, licensing.ProductChatbot, testNow.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.FindActive(ctx, l.Key, licensing.ProductChatbot)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		require.NoError(t, repo.Create(ctx, licensing.NewProductKey("cb_third", l.Key, licensing.ProductChatbot, testNow)))
		active, err := repo.FindActive(ctx, l.Key, licensing.ProductChatbot)
		require.NoError(t, err)
		assert.Equal(t, "cb_third", active.Key)

		all, err := repo.ListByLicenseProduct(ctx, l.Key, licensing.ProductChatbot)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("deactivate is idempotent", func(t *testing.T) {
		_, err := repo.DeactivateAll(ctx, l.Key, licensing.ProductChatbot, testNow)
		require.NoError(t, err)
		n, err := repo.DeactivateAll(ctx, l.Key, licensing.ProductChatbot, testNow)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestGormProductKeyRepository_ActiveKeyValues(t *testing.T) {
	db := sqlitetest.New(t)
	repo := NewGormProductKeyRepository(db)
	ctx := context.Background()
	lk := licensing.LicenseKey("CCCC-0000-0000-0002")

	require.NoError(t, repo.Create(ctx, licensing.NewProductKey("or_b", lk, licensing.ProductOutreach, testNow)))
	require.NoError(t, repo.Create(ctx, licensing.NewProductKey("cb_a", lk, licensing.ProductChatbot, testNow)))
	old := licensing.NewProductKey("su_old", lk, licensing.ProductSetup, testNow)
	old.Deactivate(testNow)
	require.NoError(t, repo.Create(ctx, old))

	all, err := repo.ActiveKeyValues(ctx, lk, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cb_a", "or_b"}, all)

	p := licensing.ProductOutreach
	only, err := repo.ActiveKeyValues(ctx, lk, &p)
	require.NoError(t, err)
	assert.Equal(t, []string{"or_b"}, only)
}

func TestGormProductKeyRepository_CreateForLicense(t *testing.T) {
	db := sqlitetest.New(t)
	licenses := NewGormLicenseRepository(db)
	repo := NewGormProductKeyRepository(db)
	ctx := context.Background()

	l := newTestLicense(t, "CCCC-0000-0000-0003")
	require.NoError(t, licenses.Create(ctx, l))
	require.NoError(t, repo.Create(ctx, licensing.NewProductKey("taken", "CCCC-0000-0000-0009", licensing.ProductSetup, testNow)))

	t.Run("rolls back license change on key conflict", func(t *testing.T) {
		require.NoError(t, l.EnableProduct(licensing.ProductSetup, testNow))
		err := repo.CreateForLicense(ctx, licensing.NewProductKey("taken", l.Key, licensing.ProductSetup, testNow), l)
		assert.ErrorIs(t, err, licensing.ErrDuplicateKey)

		found, err := licenses.FindByKey(ctx, l.Key)
		require.NoError(t, err)
		assert.False(t, found.IsEntitledTo(licensing.ProductSetup))
	})

	t.Run("commits both", func(t *testing.T) {
		require.NoError(t, repo.CreateForLicense(ctx, licensing.NewProductKey("su_new", l.Key, licensing.ProductSetup, testNow), l))

		found, err := licenses.FindByKey(ctx, l.Key)
		require.NoError(t, err)
		assert.True(t, found.IsEntitledTo(licensing.ProductSetup))
		_, err = repo.FindActive(ctx, l.Key, licensing.ProductSetup)
		assert.NoError(t, err)
	})
}

func TestGormProductKeyRepository_WithinTx(t *testing.T) {
	repo := NewGormProductKeyRepository(sqlitetest.New(t))
	ctx := context.Background()
	lk := licensing.LicenseKey("DDDD-0000-0000-0001")
	require.NoError(t, repo.Create(ctx, licensing.NewProductKey("cb_keep", lk, licensing.ProductChatbot, testNow)))

	t.Run("rolls back when fn fails", func(t *testing.T) {
		err := repo.WithinTx(ctx, func(keys licensing.ProductKeyRepository) error {
			n, err := keys.DeactivateAll(ctx, lk, licensing.ProductChatbot, testNow)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			// a value collision must not poison the transaction
			assert.ErrorIs(t, keys.Create(ctx, licensing.NewProductKey("cb_keep", lk, licensing.ProductChatbot, testNow)), licensing.ErrDuplicateKey)
			_, err = keys.FindActive(ctx, lk, licensing.ProductChatbot)
			assert.ErrorIs(t, err, shared.ErrNotFound)
			return shared.ErrConflict
		})
		assert.ErrorIs(t, err, shared.ErrConflict)

		active, err := repo.FindActive(ctx, lk, licensing.ProductChatbot)
		require.NoError(t, err)
		assert.Equal(t, "cb_keep", active.Key)
	})

	t.Run("commits when fn succeeds", func(t *testing.T) {
		err := repo.WithinTx(ctx, func(keys licensing.ProductKeyRepository) error {
			if _, err := keys.DeactivateAll(ctx, lk, licensing.ProductChatbot, testNow); err != nil {
				return err
			}
			return keys.Create(ctx, licensing.NewProductKey("cb_next", lk, licensing.ProductChatbot, testNow))
		})
		require.NoError(t, err)

		active, err := repo.FindActive(ctx, lk, licensing.ProductChatbot)
		require.NoError(t, err)
		assert.Equal(t, "cb_next", active.Key)
	})
}
