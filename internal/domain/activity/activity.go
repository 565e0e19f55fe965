// Package activity holds read models of product traffic attributed to
// product keys: conversation logs, leads and campaign statistics.
package activity

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
)

// Conversation is a logged chat exchange
type Conversation struct {
	ID         string    `json:"id"`
	ProductKey string    `json:"product_key"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
}

// Lead is a contact captured by a product integration
type Lead struct {
	ID         string    `json:"id"`
	ProductKey string    `json:"product_key"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// CampaignStat is a daily counter row of an outreach campaign
type CampaignStat struct {
	ID         string    `json:"id"`
	ProductKey string    `json:"product_key"`
	Campaign   string    `json:"campaign"`
	Day        time.Time `json:"day"`
	Sent       int64     `json:"sent"`
	Opened     int64     `json:"opened"`
	Replied    int64     `json:"replied"`
}

// Query is a scoped, paginated read
type Query struct {
	shared.Filter
	Scope licensing.Scope
	From  *time.Time
	To    *time.Time
}

// Reader reads activity rows. Implementations must apply Query.Scope and
// return nothing for an empty scope.
type Reader interface {
	Conversations(ctx context.Context, q Query) ([]Conversation, int64, error)
	Leads(ctx context.Context, q Query) ([]Lead, int64, error)
	CampaignStats(ctx context.Context, q Query) ([]CampaignStat, int64, error)
}
