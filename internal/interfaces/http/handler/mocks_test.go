package handler

import (
	"context"
	"time"

	appactivity "github.com/licensehub/backend/internal/application/activity"
	appaudit "github.com/licensehub/backend/internal/application/audit"
	licensingapp "github.com/licensehub/backend/internal/application/licensing"
	appusage "github.com/licensehub/backend/internal/application/usage"
	"github.com/licensehub/backend/internal/domain/activity"
	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/stretchr/testify/mock"
)

func licenseOrNil(v any) *licensing.License {
	l, _ := v.(*licensing.License)
	return l
}

type mockLicenseManager struct{ mock.Mock }

func (m *mockLicenseManager) Provision(ctx context.Context, actor licensing.Actor, in licensingapp.ProvisionLicenseInput) (*licensing.License, error) {
	args := m.Called(ctx, actor, in)
	return licenseOrNil(args.Get(0)), args.Error(1)
}

func (m *mockLicenseManager) Get(ctx context.Context, actor licensing.Actor, key string) (*licensing.License, error) {
	args := m.Called(ctx, actor, key)
	return licenseOrNil(args.Get(0)), args.Error(1)
}

func (m *mockLicenseManager) List(ctx context.Context, actor licensing.Actor, in licensingapp.ListLicensesInput) (shared.Paginated[licensing.License], error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(shared.Paginated[licensing.License]), args.Error(1)
}

func (m *mockLicenseManager) Activate(ctx context.Context, actor licensing.Actor, key string) (*licensing.License, error) {
	args := m.Called(ctx, actor, key)
	return licenseOrNil(args.Get(0)), args.Error(1)
}

func (m *mockLicenseManager) Suspend(ctx context.Context, actor licensing.Actor, key string) (*licensing.License, error) {
	args := m.Called(ctx, actor, key)
	return licenseOrNil(args.Get(0)), args.Error(1)
}

func (m *mockLicenseManager) Expire(ctx context.Context, actor licensing.Actor, key string) (*licensing.License, error) {
	args := m.Called(ctx, actor, key)
	return licenseOrNil(args.Get(0)), args.Error(1)
}

func (m *mockLicenseManager) SetProducts(ctx context.Context, actor licensing.Actor, key string, enable, disable []string) (*licensing.License, error) {
	args := m.Called(ctx, actor, key, enable, disable)
	return licenseOrNil(args.Get(0)), args.Error(1)
}

func (m *mockLicenseManager) Impersonate(ctx context.Context, actor licensing.Actor, key string) (*licensingapp.ImpersonationSession, error) {
	args := m.Called(ctx, actor, key)
	s, _ := args.Get(0).(*licensingapp.ImpersonationSession)
	return s, args.Error(1)
}

type mockKeyManager struct{ mock.Mock }

func (m *mockKeyManager) IssueKey(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (*licensing.ProductKey, error) {
	args := m.Called(ctx, actor, in)
	k, _ := args.Get(0).(*licensing.ProductKey)
	return k, args.Error(1)
}

func (m *mockKeyManager) RevokeKey(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (int64, error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockKeyManager) ResetProduct(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (int64, error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockKeyManager) RegenerateKey(ctx context.Context, actor licensing.Actor, in licensingapp.KeyInput) (*licensing.ProductKey, error) {
	args := m.Called(ctx, actor, in)
	k, _ := args.Get(0).(*licensing.ProductKey)
	return k, args.Error(1)
}

func (m *mockKeyManager) ListKeys(ctx context.Context, actor licensing.Actor, key string) ([]licensing.ProductKey, error) {
	args := m.Called(ctx, actor, key)
	keys, _ := args.Get(0).([]licensing.ProductKey)
	return keys, args.Error(1)
}

type mockRevoker struct{ mock.Mock }

func (m *mockRevoker) RevokeTenant(ctx context.Context, actor licensing.Actor, key string) error {
	return m.Called(ctx, actor, key).Error(0)
}

type mockMigrator struct{ mock.Mock }

func (m *mockMigrator) MigrateLegacyCredentials(ctx context.Context, actor licensing.Actor) (licensingapp.MigrationReport, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(licensingapp.MigrationReport), args.Error(1)
}

type mockAuditReader struct{ mock.Mock }

func (m *mockAuditReader) List(ctx context.Context, filter audit.Filter) (shared.Paginated[audit.Entry], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[audit.Entry]), args.Error(1)
}

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) Archive(ctx context.Context, actor licensing.Actor, day time.Time) (appaudit.ArchiveResult, error) {
	args := m.Called(ctx, actor, day)
	return args.Get(0).(appaudit.ArchiveResult), args.Error(1)
}

type mockUsageReader struct{ mock.Mock }

func (m *mockUsageReader) Summary(ctx context.Context, license licensing.LicenseKey, from, to time.Time) ([]usage.DailyUsage, error) {
	args := m.Called(ctx, license, from, to)
	rows, _ := args.Get(0).([]usage.DailyUsage)
	return rows, args.Error(1)
}

func (m *mockUsageReader) CheckQuota(ctx context.Context, license licensing.LicenseKey, plan licensing.Plan) (appusage.QuotaStatus, error) {
	args := m.Called(ctx, license, plan)
	return args.Get(0).(appusage.QuotaStatus), args.Error(1)
}

type mockActivityReader struct{ mock.Mock }

func (m *mockActivityReader) Conversations(ctx context.Context, actor licensing.Actor, in appactivity.ListInput) (shared.Paginated[activity.Conversation], error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(shared.Paginated[activity.Conversation]), args.Error(1)
}

func (m *mockActivityReader) Leads(ctx context.Context, actor licensing.Actor, in appactivity.ListInput) (shared.Paginated[activity.Lead], error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(shared.Paginated[activity.Lead]), args.Error(1)
}

func (m *mockActivityReader) CampaignStats(ctx context.Context, actor licensing.Actor, in appactivity.ListInput) (shared.Paginated[activity.CampaignStat], error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(shared.Paginated[activity.CampaignStat]), args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }
