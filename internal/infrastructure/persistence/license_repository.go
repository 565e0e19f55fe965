package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLicenseRepository implements licensing.LicenseRepository using GORM
type GormLicenseRepository struct {
	db *gorm.DB
}

// NewGormLicenseRepository creates a new GormLicenseRepository
func NewGormLicenseRepository(db *gorm.DB) *GormLicenseRepository {
	return &GormLicenseRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormLicenseRepository) WithTx(tx *gorm.DB) *GormLicenseRepository {
	return &GormLicenseRepository{db: tx}
}

// FindByKey finds a license by its key
func (r *GormLicenseRepository) FindByKey(ctx context.Context, key licensing.LicenseKey) (*licensing.License, error) {
	var model models.LicenseModel
	if err := r.db.WithContext(ctx).Where("key = ?", key.String()).First(&model).Error; err != nil {
		return nil, classifyNotFound(err, licensing.ErrLicenseNotFound)
	}
	return model.ToDomain()
}

// ExistsByKey checks if a license key is taken
func (r *GormLicenseRepository) ExistsByKey(ctx context.Context, key licensing.LicenseKey) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LicenseModel{}).
		Where("key = ?", key.String()).
		Count(&count).Error
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}

// Create inserts a new license
func (r *GormLicenseRepository) Create(ctx context.Context, license *licensing.License) error {
	if err := r.db.WithContext(ctx).Create(models.LicenseModelFromDomain(license)).Error; err != nil {
		return classify(err)
	}
	license.MarkPersisted()
	return nil
}

// Save writes every mutable column of an existing license. The update only
// applies when the stored version still matches the version the license was
// loaded at, so a stale copy cannot overwrite a newer state.
func (r *GormLicenseRepository) Save(ctx context.Context, license *licensing.License) error {
	if err := r.update(ctx, license); err != nil {
		return err
	}
	license.MarkPersisted()
	return nil
}

func (r *GormLicenseRepository) update(ctx context.Context, license *licensing.License) error {
	model := models.LicenseModelFromDomain(license)
	result := r.db.WithContext(ctx).
		Model(&models.LicenseModel{}).
		Where("key = ? AND version = ?", model.Key, license.PersistedVersion()).
		Updates(map[string]any{
			"email":                    model.Email,
			"name":                     model.Name,
			"plan":                     model.Plan,
			"status":                   model.Status,
			"products":                 model.Products,
			"legacy_credential":        model.LegacyCredential,
			"external_subscription_id": model.ExternalSubscriptionID,
			"last_used_at":             model.LastUsedAt,
			"revoked_at":               model.RevokedAt,
			"version":                  model.Version,
			"updated_at":               model.UpdatedAt,
		})
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		exists, err := r.ExistsByKey(ctx, license.Key)
		if err != nil {
			return err
		}
		if exists {
			return licensing.ErrLicenseModified
		}
		return licensing.ErrLicenseNotFound
	}
	return nil
}

// List returns a filtered page of licenses and the total count
func (r *GormLicenseRepository) List(ctx context.Context, filter licensing.LicenseFilter) ([]licensing.License, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.LicenseModel{})

	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Plan != "" {
		query = query.Where("plan = ?", string(filter.Plan))
	}
	if filter.Product != "" {
		// products is a JSON array of strings on both dialects
		query = query.Where("CAST(products AS TEXT) LIKE ?", `%"`+string(filter.Product)+`"%`)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ? OR LOWER(key) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	orderBy := ValidateSortField(filter.OrderBy, LicenseSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var rows []models.LicenseModel
	err := query.Order(orderBy + " " + orderDir).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, classify(err)
	}

	licenses := make([]licensing.License, 0, len(rows))
	for i := range rows {
		l, err := rows[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		licenses = append(licenses, *l)
	}
	return licenses, total, nil
}

// ListWithLegacyCredential returns up to limit licenses holding a legacy
// credential with keys strictly greater than after, in key order.
func (r *GormLicenseRepository) ListWithLegacyCredential(ctx context.Context, after licensing.LicenseKey, limit int) ([]licensing.License, error) {
	var rows []models.LicenseModel
	err := r.db.WithContext(ctx).
		Where("legacy_credential IS NOT NULL AND legacy_credential <> ''").
		Where("key > ?", after.String()).
		Order("key ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify(err)
	}

	licenses := make([]licensing.License, 0, len(rows))
	for i := range rows {
		l, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, *l)
	}
	return licenses, nil
}

// TouchLastUsed sets last_used_at without touching updated_at or version
func (r *GormLicenseRepository) TouchLastUsed(ctx context.Context, key licensing.LicenseKey, at time.Time) error {
	return classify(r.db.WithContext(ctx).
		Model(&models.LicenseModel{}).
		Where("key = ?", key.String()).
		UpdateColumn("last_used_at", at).Error)
}
