package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	appusage "github.com/licensehub/backend/internal/application/usage"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newUsageRouter(licenses LicenseManager, meter UsageReader, now time.Time) *gin.Engine {
	h := NewUsageHandler(licenses, meter)
	h.now = func() time.Time { return now }
	return newRouter(&tenantActor, func(r gin.IRoutes) { r.GET("/usage", h.Summary) })
}

func TestUsageHandler_DefaultWindow(t *testing.T) {
	now := time.Date(2026, 3, 31, 15, 0, 0, 0, time.UTC)
	licenses := new(mockLicenseManager)
	licenses.On("Get", mock.Anything, tenantActor, tenantKey).Return(sampleLicense(licensing.LicenseStatusActive), nil)
	meter := new(mockUsageReader)
	meter.On("Summary", mock.Anything, licensing.LicenseKey(tenantKey), now.Add(-defaultUsageWindow), now).
		Return([]usage.DailyUsage{{Metric: usage.MetricAPICall, Value: decimal.NewFromInt(42), Count: 42}}, nil)
	meter.On("CheckQuota", mock.Anything, licensing.LicenseKey(tenantKey), licensing.PlanStarter).
		Return(appusage.QuotaStatus{Metric: usage.MetricAPICall, Used: decimal.NewFromInt(42), Limit: decimal.NewFromInt(10000), Remaining: decimal.NewFromInt(9958)}, nil)

	w := do(newUsageRouter(licenses, meter, now), http.MethodGet, "/usage", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got UsageSummaryResponse
	decode(t, w, &got)
	assert.Equal(t, "starter", got.Plan)
	assert.Equal(t, "2026-03-01", got.From)
	assert.Equal(t, "2026-03-31", got.To)
	require.Len(t, got.Daily, 1)
	assert.True(t, got.Quota.Remaining.Equal(decimal.NewFromInt(9958)))
}

func TestUsageHandler_ExplicitRange(t *testing.T) {
	licenses := new(mockLicenseManager)
	licenses.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(sampleLicense(licensing.LicenseStatusActive), nil)
	meter := new(mockUsageReader)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	meter.On("Summary", mock.Anything, mock.Anything, from, to).Return(nil, nil)
	meter.On("CheckQuota", mock.Anything, mock.Anything, mock.Anything).Return(appusage.QuotaStatus{}, nil)

	w := do(newUsageRouter(licenses, meter, time.Now()), http.MethodGet, "/usage?from=2026-02-01&to=2026-02-07", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"daily":[]`)
	meter.AssertExpectations(t)
}

func TestUsageHandler_BadRange(t *testing.T) {
	router := newUsageRouter(new(mockLicenseManager), new(mockUsageReader), time.Now())

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/usage?from=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/usage?from=2026-02-07&to=2026-02-01", nil).Code)
}
