package persistence

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductKeyRepository implements licensing.ProductKeyRepository using GORM.
// Keys are never deleted; revocation flips status to inactive.
type GormProductKeyRepository struct {
	db *gorm.DB
}

// NewGormProductKeyRepository creates a new GormProductKeyRepository
func NewGormProductKeyRepository(db *gorm.DB) *GormProductKeyRepository {
	return &GormProductKeyRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormProductKeyRepository) WithTx(tx *gorm.DB) *GormProductKeyRepository {
	return &GormProductKeyRepository{db: tx}
}

// FindByKey finds a key by its value regardless of status
func (r *GormProductKeyRepository) FindByKey(ctx context.Context, value string) (*licensing.ProductKey, error) {
	var model models.ProductKeyModel
	if err := r.db.WithContext(ctx).Where("key = ?", value).First(&model).Error; err != nil {
		return nil, classifyNotFound(err, licensing.ErrProductKeyNotFound)
	}
	return model.ToDomain()
}

// ExistsByKey checks if a key value is taken by any row, active or not
func (r *GormProductKeyRepository) ExistsByKey(ctx context.Context, value string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProductKeyModel{}).
		Where("key = ?", value).
		Count(&count).Error
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}

// FindActive returns the active key of (license, product)
func (r *GormProductKeyRepository) FindActive(ctx context.Context, license licensing.LicenseKey, product licensing.Product) (*licensing.ProductKey, error) {
	var model models.ProductKeyModel
	err := r.db.WithContext(ctx).
		Where("license_key = ? AND product = ? AND status = ?", license.String(), string(product), string(licensing.KeyStatusActive)).
		First(&model).Error
	if err != nil {
		return nil, classifyNotFound(err, licensing.ErrProductKeyNotFound)
	}
	return model.ToDomain()
}

// ListByLicense lists every key of a license, newest first
func (r *GormProductKeyRepository) ListByLicense(ctx context.Context, license licensing.LicenseKey) ([]licensing.ProductKey, error) {
	return r.list(ctx, r.db.Where("license_key = ?", license.String()))
}

// ListByLicenseProduct lists every key of (license, product), newest first
func (r *GormProductKeyRepository) ListByLicenseProduct(ctx context.Context, license licensing.LicenseKey, product licensing.Product) ([]licensing.ProductKey, error) {
	return r.list(ctx, r.db.Where("license_key = ? AND product = ?", license.String(), string(product)))
}

func (r *GormProductKeyRepository) list(ctx context.Context, query *gorm.DB) ([]licensing.ProductKey, error) {
	var rows []models.ProductKeyModel
	if err := query.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	keys := make([]licensing.ProductKey, 0, len(rows))
	for i := range rows {
		k, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, nil
}

// ActiveKeyValues returns the values of the license's active keys
func (r *GormProductKeyRepository) ActiveKeyValues(ctx context.Context, license licensing.LicenseKey, product *licensing.Product) ([]string, error) {
	query := r.db.WithContext(ctx).Model(&models.ProductKeyModel{}).
		Where("license_key = ? AND status = ?", license.String(), string(licensing.KeyStatusActive))
	if product != nil {
		query = query.Where("product = ?", string(*product))
	}
	var values []string
	if err := query.Order("key ASC").Pluck("key", &values).Error; err != nil {
		return nil, classify(err)
	}
	return values, nil
}

// Create inserts a key. A taken value or a second active key for the same
// (license, product) both surface as licensing.ErrDuplicateKey.
func (r *GormProductKeyRepository) Create(ctx context.Context, key *licensing.ProductKey) error {
	// Inside a transaction this is a savepoint, so a unique violation leaves
	// the outer transaction usable.
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(models.ProductKeyModelFromDomain(key)).Error
	})
	return classify(err)
}

// WithinTx runs fn with a repository bound to one transaction
func (r *GormProductKeyRepository) WithinTx(ctx context.Context, fn func(keys licensing.ProductKeyRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// CreateForLicense inserts key and saves license atomically
func (r *GormProductKeyRepository) CreateForLicense(ctx context.Context, key *licensing.ProductKey, license *licensing.License) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewGormLicenseRepository(tx).update(ctx, license); err != nil {
			return err
		}
		return r.WithTx(tx).Create(ctx, key)
	})
	if err != nil {
		return classify(err)
	}
	license.MarkPersisted()
	return nil
}

// DeactivateAll flips every active key of (license, product) to inactive in
// one statement.
func (r *GormProductKeyRepository) DeactivateAll(ctx context.Context, license licensing.LicenseKey, product licensing.Product, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ProductKeyModel{}).
		Where("license_key = ? AND product = ? AND status = ?", license.String(), string(product), string(licensing.KeyStatusActive)).
		Updates(map[string]any{
			"status":     string(licensing.KeyStatusInactive),
			"updated_at": at,
		})
	if result.Error != nil {
		return 0, classify(result.Error)
	}
	return result.RowsAffected, nil
}

// TouchLastUsed sets last_used_at of a key
func (r *GormProductKeyRepository) TouchLastUsed(ctx context.Context, value string, at time.Time) error {
	return classify(r.db.WithContext(ctx).
		Model(&models.ProductKeyModel{}).
		Where("key = ?", value).
		UpdateColumn("last_used_at", at).Error)
}
