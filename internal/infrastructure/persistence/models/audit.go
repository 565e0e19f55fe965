package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/licensehub/backend/internal/domain/audit"
	"gorm.io/datatypes"
)

// AuditEntryModel is the persistence model for audit entries. Rows are
// inserted only; the audit guard callback rejects UPDATE and DELETE.
type AuditEntryModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primary_key"`
	Action     string            `gorm:"type:varchar(32);not null;index"`
	ActorID    string            `gorm:"type:varchar(100);not null;index"`
	LicenseKey string            `gorm:"type:varchar(19);index"`
	ResourceID string            `gorm:"type:varchar(128)"`
	Outcome    string            `gorm:"type:varchar(16);not null"`
	Error      string            `gorm:"type:text"`
	Changes    datatypes.JSONMap `gorm:"type:json"`
	IPAddress  string            `gorm:"type:varchar(45)"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// ToDomain converts the persistence model to an audit Entry
func (m *AuditEntryModel) ToDomain() audit.Entry {
	return audit.Entry{
		ID:         m.ID,
		Action:     audit.Action(m.Action),
		ActorID:    m.ActorID,
		LicenseKey: m.LicenseKey,
		ResourceID: m.ResourceID,
		Outcome:    audit.Outcome(m.Outcome),
		Error:      m.Error,
		Changes:    map[string]any(m.Changes),
		IPAddress:  m.IPAddress,
		CreatedAt:  m.CreatedAt,
	}
}

// AuditEntryModelFromDomain creates a persistence model from an audit Entry
func AuditEntryModelFromDomain(e *audit.Entry) *AuditEntryModel {
	return &AuditEntryModel{
		ID:         e.ID,
		Action:     string(e.Action),
		ActorID:    e.ActorID,
		LicenseKey: e.LicenseKey,
		ResourceID: e.ResourceID,
		Outcome:    string(e.Outcome),
		Error:      e.Error,
		Changes:    datatypes.JSONMap(e.Changes),
		IPAddress:  e.IPAddress,
		CreatedAt:  e.CreatedAt,
	}
}
