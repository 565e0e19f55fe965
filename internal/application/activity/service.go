// Package activity serves scoped reads of product traffic.
package activity

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/activity"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
)

// ScopeProvider resolves the read scope of an actor
type ScopeProvider interface {
	ScopeFilter(ctx context.Context, actor licensing.Actor, product *licensing.Product) (licensing.Scope, error)
}

// ListInput holds paging and time window parameters
type ListInput struct {
	Page     int
	PageSize int
	From     *time.Time
	To       *time.Time
}

// Service reads activity through the actor's scope
type Service struct {
	reader activity.Reader
	scopes ScopeProvider
}

// NewService creates an activity service
func NewService(reader activity.Reader, scopes ScopeProvider) *Service {
	return &Service{reader: reader, scopes: scopes}
}

// Conversations lists chat logs; they are written by the chatbot product
func (s *Service) Conversations(ctx context.Context, actor licensing.Actor, in ListInput) (shared.Paginated[activity.Conversation], error) {
	q, err := s.query(ctx, actor, productPtr(licensing.ProductChatbot), in)
	if err != nil {
		return shared.Paginated[activity.Conversation]{}, err
	}
	items, total, err := s.reader.Conversations(ctx, q)
	if err != nil {
		return shared.Paginated[activity.Conversation]{}, err
	}
	return shared.NewPaginated(items, total, q.Page, q.Limit()), nil
}

// Leads lists captured leads across all products
func (s *Service) Leads(ctx context.Context, actor licensing.Actor, in ListInput) (shared.Paginated[activity.Lead], error) {
	q, err := s.query(ctx, actor, nil, in)
	if err != nil {
		return shared.Paginated[activity.Lead]{}, err
	}
	items, total, err := s.reader.Leads(ctx, q)
	if err != nil {
		return shared.Paginated[activity.Lead]{}, err
	}
	return shared.NewPaginated(items, total, q.Page, q.Limit()), nil
}

// CampaignStats lists outreach campaign counters
func (s *Service) CampaignStats(ctx context.Context, actor licensing.Actor, in ListInput) (shared.Paginated[activity.CampaignStat], error) {
	q, err := s.query(ctx, actor, productPtr(licensing.ProductOutreach), in)
	if err != nil {
		return shared.Paginated[activity.CampaignStat]{}, err
	}
	items, total, err := s.reader.CampaignStats(ctx, q)
	if err != nil {
		return shared.Paginated[activity.CampaignStat]{}, err
	}
	return shared.NewPaginated(items, total, q.Page, q.Limit()), nil
}

func (s *Service) query(ctx context.Context, actor licensing.Actor, product *licensing.Product, in ListInput) (activity.Query, error) {
	if in.From != nil && in.To != nil && in.To.Before(*in.From) {
		return activity.Query{}, shared.ErrInvalidInput.WithMessage("Range end is before its start")
	}
	scope, err := s.scopes.ScopeFilter(ctx, actor, product)
	if err != nil {
		return activity.Query{}, err
	}
	f := shared.DefaultFilter()
	if in.Page > 0 {
		f.Page = in.Page
	}
	if in.PageSize > 0 {
		f.PageSize = in.PageSize
	}
	return activity.Query{Filter: f, Scope: scope, From: in.From, To: in.To}, nil
}

func productPtr(p licensing.Product) *licensing.Product {
	return &p
}
