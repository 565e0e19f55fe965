package persistence

import (
	"context"

	"github.com/licensehub/backend/internal/domain/activity"
	"github.com/licensehub/backend/internal/infrastructure/persistence/datascope"
	"github.com/licensehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormActivityReader implements activity.Reader. Every query goes through
// the datascope filter before any other condition is added.
type GormActivityReader struct {
	db *gorm.DB
}

// NewGormActivityReader creates a new GormActivityReader
func NewGormActivityReader(db *gorm.DB) *GormActivityReader {
	return &GormActivityReader{db: db}
}

// Conversations returns scoped conversation logs
func (r *GormActivityReader) Conversations(ctx context.Context, q activity.Query) ([]activity.Conversation, int64, error) {
	var rows []models.ConversationModel
	total, err := r.find(ctx, q, models.ConversationModel{}.TableName(), "created_at", &rows)
	if err != nil {
		return nil, 0, err
	}
	out := make([]activity.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, total, nil
}

// Leads returns scoped leads
func (r *GormActivityReader) Leads(ctx context.Context, q activity.Query) ([]activity.Lead, int64, error) {
	var rows []models.LeadModel
	total, err := r.find(ctx, q, models.LeadModel{}.TableName(), "created_at", &rows)
	if err != nil {
		return nil, 0, err
	}
	out := make([]activity.Lead, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, total, nil
}

// CampaignStats returns scoped campaign statistics
func (r *GormActivityReader) CampaignStats(ctx context.Context, q activity.Query) ([]activity.CampaignStat, int64, error) {
	var rows []models.CampaignStatModel
	total, err := r.find(ctx, q, models.CampaignStatModel{}.TableName(), "day", &rows)
	if err != nil {
		return nil, 0, err
	}
	out := make([]activity.CampaignStat, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, total, nil
}

func (r *GormActivityReader) find(ctx context.Context, q activity.Query, table, timeColumn string, dest any) (int64, error) {
	query := r.db.WithContext(ctx).Table(table).
		Scopes(datascope.NewFilter(q.Scope).ApplyToQuery(table))

	if q.From != nil {
		query = query.Where(timeColumn+" >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where(timeColumn+" <= ?", *q.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, classify(err)
	}

	orderBy := ValidateSortField(q.OrderBy, ActivitySortFields[table], timeColumn)
	orderDir := ValidateSortOrder(q.OrderDir)

	err := query.Order(orderBy + " " + orderDir).
		Offset(q.Offset()).
		Limit(q.Limit()).
		Find(dest).Error
	if err != nil {
		return 0, classify(err)
	}
	return total, nil
}
