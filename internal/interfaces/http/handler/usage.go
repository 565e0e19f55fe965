package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	appusage "github.com/licensehub/backend/internal/application/usage"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/usage"
)

// UsageReader is the slice of the usage meter used by the usage handler
type UsageReader interface {
	Summary(ctx context.Context, license licensing.LicenseKey, from, to time.Time) ([]usage.DailyUsage, error)
	CheckQuota(ctx context.Context, license licensing.LicenseKey, plan licensing.Plan) (appusage.QuotaStatus, error)
}

// UsageHandler serves a tenant's usage summary
type UsageHandler struct {
	BaseHandler
	licenses LicenseManager
	meter    UsageReader
	now      func() time.Time
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(licenses LicenseManager, meter UsageReader) *UsageHandler {
	return &UsageHandler{licenses: licenses, meter: meter, now: time.Now}
}

// UsageQuery holds the query parameters of GET /usage
type UsageQuery struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// UsageSummaryResponse is the body of GET /usage
// @Description Daily usage per metric and today's standing against the plan limit
type UsageSummaryResponse struct {
	LicenseKey string               `json:"license_key" example:"ABCD-EFGH-JKLM-NPQR"`
	Plan       string               `json:"plan" example:"starter"`
	From       string               `json:"from" example:"2026-03-01"`
	To         string               `json:"to" example:"2026-03-30"`
	Daily      []usage.DailyUsage   `json:"daily"`
	Quota      appusage.QuotaStatus `json:"quota"`
}

const defaultUsageWindow = 30 * 24 * time.Hour

// Summary godoc
// @ID           getUsageSummary
// @Summary      Get usage summary
// @Description  Daily usage per metric for a date range (default: the last 30 days) and today's api_call quota
// @Tags         usage
// @Produce      json
// @Param        from query string false "First day (YYYY-MM-DD)"
// @Param        to   query string false "Last day (YYYY-MM-DD)"
// @Success      200 {object} APIResponse[UsageSummaryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /usage [get]
func (h *UsageHandler) Summary(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var q UsageQuery
	if !h.BindQuery(c, &q) {
		return
	}

	to := h.now().UTC()
	if q.To != "" {
		to, _ = time.Parse(time.DateOnly, q.To)
	}
	from := to.Add(-defaultUsageWindow)
	if q.From != "" {
		from, _ = time.Parse(time.DateOnly, q.From)
	}
	if from.After(to) {
		h.BadRequest(c, "from must not be after to")
		return
	}

	ctx := c.Request.Context()
	license, err := h.licenses.Get(ctx, actor, actor.LicenseKey.String())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	daily, err := h.meter.Summary(ctx, license.Key, from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	quota, err := h.meter.CheckQuota(ctx, license.Key, license.Plan)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if daily == nil {
		daily = []usage.DailyUsage{}
	}
	h.Success(c, UsageSummaryResponse{
		LicenseKey: license.Key.String(),
		Plan:       string(license.Plan),
		From:       from.Format(time.DateOnly),
		To:         to.Format(time.DateOnly),
		Daily:      daily,
		Quota:      quota,
	})
}
