package persistence

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/licensehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUsageRepository implements usage.Repository using GORM
type GormUsageRepository struct {
	db *gorm.DB
}

// NewGormUsageRepository creates a new GormUsageRepository
func NewGormUsageRepository(db *gorm.DB) *GormUsageRepository {
	return &GormUsageRepository{db: db}
}

// Add folds a record into its daily aggregate with a single upsert, so
// concurrent writers never lose increments.
func (r *GormUsageRepository) Add(ctx context.Context, rec usage.Record) error {
	now := rec.At.UTC()
	model := &models.UsageDailyModel{
		LicenseKey: rec.LicenseKey.String(),
		Metric:     string(rec.Metric),
		Day:        rec.Day(),
		Value:      rec.Value,
		Count:      1,
		UpdatedAt:  now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "license_key"}, {Name: "metric"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("usage_daily.value + excluded.value"),
				"count":      gorm.Expr("usage_daily.count + 1"),
				"updated_at": now,
			}),
		}).
		Create(model).Error
	return classify(err)
}

// Get returns one daily aggregate
func (r *GormUsageRepository) Get(ctx context.Context, license licensing.LicenseKey, metric usage.Metric, day time.Time) (*usage.DailyUsage, error) {
	var model models.UsageDailyModel
	err := r.db.WithContext(ctx).
		Where("license_key = ? AND metric = ? AND day = ?", license.String(), string(metric), usage.DayOf(day)).
		First(&model).Error
	if err != nil {
		return nil, classifyNotFound(err, shared.ErrNotFound)
	}
	d := model.ToDomain()
	return &d, nil
}

// Range returns every aggregate of a license with from <= day <= to, oldest first
func (r *GormUsageRepository) Range(ctx context.Context, license licensing.LicenseKey, from, to time.Time) ([]usage.DailyUsage, error) {
	var rows []models.UsageDailyModel
	err := r.db.WithContext(ctx).
		Where("license_key = ? AND day >= ? AND day <= ?", license.String(), usage.DayOf(from), usage.DayOf(to)).
		Order("day ASC, metric ASC").
		Find(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	out := make([]usage.DailyUsage, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}
