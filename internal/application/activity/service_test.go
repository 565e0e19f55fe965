package activity

import (
	"context"
	"testing"
	"time"

	"github.com/licensehub/backend/internal/domain/activity"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScopes struct {
	scope    licensing.Scope
	err      error
	products []*licensing.Product
}

func (s *stubScopes) ScopeFilter(_ context.Context, _ licensing.Actor, product *licensing.Product) (licensing.Scope, error) {
	s.products = append(s.products, product)
	return s.scope, s.err
}

// capturingReader records the last query and honours the scope the way the
// gorm reader does
type capturingReader struct {
	last activity.Query
	rows []activity.Conversation
}

func (r *capturingReader) Conversations(_ context.Context, q activity.Query) ([]activity.Conversation, int64, error) {
	r.last = q
	var out []activity.Conversation
	for _, c := range r.rows {
		if q.Scope.Allows(c.ProductKey) {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (r *capturingReader) Leads(_ context.Context, q activity.Query) ([]activity.Lead, int64, error) {
	r.last = q
	return nil, 0, nil
}

func (r *capturingReader) CampaignStats(_ context.Context, q activity.Query) ([]activity.CampaignStat, int64, error) {
	r.last = q
	return nil, 0, nil
}

var tenant = licensing.Actor{LicenseKey: "TENA-0000-0000-000A"}

func TestService_ProductNarrowing(t *testing.T) {
	ctx := context.Background()
	scopes := &stubScopes{scope: licensing.MatchKeys("cb_a1")}
	svc := NewService(&capturingReader{}, scopes)

	_, err := svc.Conversations(ctx, tenant, ListInput{})
	require.NoError(t, err)
	_, err = svc.Leads(ctx, tenant, ListInput{})
	require.NoError(t, err)
	_, err = svc.CampaignStats(ctx, tenant, ListInput{})
	require.NoError(t, err)

	require.Len(t, scopes.products, 3)
	assert.Equal(t, licensing.ProductChatbot, *scopes.products[0])
	assert.Nil(t, scopes.products[1], "leads span every product")
	assert.Equal(t, licensing.ProductOutreach, *scopes.products[2])
}

func TestService_Conversations(t *testing.T) {
	ctx := context.Background()
	reader := &capturingReader{rows: []activity.Conversation{
		{ID: "1", ProductKey: "cb_a1"},
		{ID: "2", ProductKey: "cb_b1"},
		{ID: "3", ProductKey: "abc123"},
	}}

	t.Run("only rows of the scope", func(t *testing.T) {
		svc := NewService(reader, &stubScopes{scope: licensing.MatchKeys("cb_a1", "abc123")})
		page, err := svc.Conversations(ctx, tenant, ListInput{Page: 2, PageSize: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
		assert.Equal(t, 2, reader.last.Page)
		assert.Equal(t, 5, reader.last.Limit())
	})

	t.Run("empty scope returns nothing", func(t *testing.T) {
		svc := NewService(reader, &stubScopes{scope: licensing.MatchNothing()})
		page, err := svc.Conversations(ctx, tenant, ListInput{})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Zero(t, page.Total)
	})

	t.Run("scope failure is returned", func(t *testing.T) {
		svc := NewService(reader, &stubScopes{err: shared.ErrStoreUnavailable})
		_, err := svc.Conversations(ctx, tenant, ListInput{})
		assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	})

	t.Run("inverted window", func(t *testing.T) {
		svc := NewService(reader, &stubScopes{scope: licensing.MatchAll()})
		from := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
		to := from.Add(-time.Hour)
		_, err := svc.Conversations(ctx, tenant, ListInput{From: &from, To: &to})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
