package persistence

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, shared.ErrNotFound},
		{"translated duplicate", gorm.ErrDuplicatedKey, licensing.ErrDuplicateKey},
		{"raw postgres unique violation", errors.New(`ERROR: duplicate key value violates unique constraint "idx_product_keys_key" (SQLSTATE 23505)`), shared.ErrAlreadyExists},
		{"raw sqlite unique violation", errors.New("UNIQUE constraint failed: product_keys.key"), shared.ErrAlreadyExists},
		{"bad connection", driver.ErrBadConn, shared.ErrStoreUnavailable},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), shared.ErrStoreUnavailable},
		{"domain error passes through", licensing.ErrLicenseNotFound, shared.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify(nil))
	})

	t.Run("unknown error unchanged", func(t *testing.T) {
		err := errors.New("syntax error")
		assert.Equal(t, err, classify(err))
	})
}

func TestClassifyNotFound(t *testing.T) {
	err := classifyNotFound(gorm.ErrRecordNotFound, licensing.ErrProductKeyNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Contains(t, err.Error(), "Product key not found")
}
