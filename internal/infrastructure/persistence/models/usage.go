package models

import (
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/shopspring/decimal"
)

// UsageDailyModel is the per (license, metric, day) usage aggregate
type UsageDailyModel struct {
	LicenseKey string          `gorm:"type:varchar(19);primaryKey"`
	Metric     string          `gorm:"type:varchar(32);primaryKey"`
	Day        time.Time       `gorm:"type:date;primaryKey"`
	Value      decimal.Decimal `gorm:"type:numeric(24,6);not null;default:0"`
	Count      int64           `gorm:"not null;default:0"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UsageDailyModel) TableName() string {
	return "usage_daily"
}

// ToDomain converts the persistence model to a DailyUsage
func (m *UsageDailyModel) ToDomain() usage.DailyUsage {
	return usage.DailyUsage{
		LicenseKey: licensing.LicenseKey(m.LicenseKey),
		Metric:     usage.Metric(m.Metric),
		Day:        usage.DayOf(m.Day),
		Value:      m.Value,
		Count:      m.Count,
		UpdatedAt:  m.UpdatedAt,
	}
}
