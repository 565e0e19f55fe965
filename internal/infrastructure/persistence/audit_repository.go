package persistence

import (
	"context"

	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAuditRepository implements audit.Repository using GORM. It only
// inserts and reads; RegisterAuditGuard rejects any other statement.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts an entry
func (r *GormAuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	return classify(r.db.WithContext(ctx).Create(models.AuditEntryModelFromDomain(entry)).Error)
}

// List returns a filtered page of entries, newest first by default
func (r *GormAuditRepository) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditEntryModel{})

	if filter.LicenseKey != "" {
		query = query.Where("license_key = ?", filter.LicenseKey)
	}
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", string(filter.Action))
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	orderBy := ValidateSortField(filter.OrderBy, AuditSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var rows []models.AuditEntryModel
	err := query.Order(orderBy + " " + orderDir).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error
	if err != nil {
		return nil, 0, classify(err)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToDomain())
	}
	return entries, total, nil
}
