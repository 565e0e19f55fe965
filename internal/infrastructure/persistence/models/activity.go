package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/licensehub/backend/internal/domain/activity"
)

// ConversationModel is a chat log row written by the chatbot product
type ConversationModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	ProductKey string    `gorm:"type:varchar(128);not null;index"`
	SessionID  string    `gorm:"type:varchar(100);index"`
	Message    string    `gorm:"type:text"`
	Response   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ConversationModel) TableName() string {
	return "conversation_logs"
}

// ToDomain converts the model to a Conversation
func (m *ConversationModel) ToDomain() activity.Conversation {
	return activity.Conversation{
		ID:         m.ID.String(),
		ProductKey: m.ProductKey,
		SessionID:  m.SessionID,
		Message:    m.Message,
		Response:   m.Response,
		CreatedAt:  m.CreatedAt,
	}
}

// LeadModel is a captured lead
type LeadModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	ProductKey string    `gorm:"type:varchar(128);not null;index"`
	Email      string    `gorm:"type:varchar(200)"`
	Name       string    `gorm:"type:varchar(200)"`
	Source     string    `gorm:"type:varchar(50)"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (LeadModel) TableName() string {
	return "leads"
}

// ToDomain converts the model to a Lead
func (m *LeadModel) ToDomain() activity.Lead {
	return activity.Lead{
		ID:         m.ID.String(),
		ProductKey: m.ProductKey,
		Email:      m.Email,
		Name:       m.Name,
		Source:     m.Source,
		CreatedAt:  m.CreatedAt,
	}
}

// CampaignStatModel is a daily outreach campaign counter row
type CampaignStatModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	ProductKey string    `gorm:"type:varchar(128);not null;index"`
	Campaign   string    `gorm:"type:varchar(200);not null"`
	Day        time.Time `gorm:"type:date;not null;index"`
	Sent       int64     `gorm:"not null;default:0"`
	Opened     int64     `gorm:"not null;default:0"`
	Replied    int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (CampaignStatModel) TableName() string {
	return "campaign_stats"
}

// ToDomain converts the model to a CampaignStat
func (m *CampaignStatModel) ToDomain() activity.CampaignStat {
	return activity.CampaignStat{
		ID:         m.ID.String(),
		ProductKey: m.ProductKey,
		Campaign:   m.Campaign,
		Day:        m.Day,
		Sent:       m.Sent,
		Opened:     m.Opened,
		Replied:    m.Replied,
	}
}
