package middleware

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	appusage "github.com/licensehub/backend/internal/application/usage"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/licensehub/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UsageRecorder attributes consumption to a license
type UsageRecorder interface {
	Record(ctx context.Context, license licensing.LicenseKey, metric usage.Metric, value decimal.Decimal)
}

// QuotaChecker evaluates a license's daily usage against its plan
type QuotaChecker interface {
	CheckQuota(ctx context.Context, license licensing.LicenseKey, plan licensing.Plan) (appusage.QuotaStatus, error)
}

// UsageConfig holds configuration for the usage middleware
type UsageConfig struct {
	Enabled   bool
	Recorder  UsageRecorder
	SkipPaths []string
	Logger    *zap.Logger
}

// UsageMetering records one api_call, the handler time as compute_seconds
// and the response size as bandwidth_bytes for every product-key request,
// whether it succeeded or failed. It must run after ProductKeyAuth; requests
// without a resolution are not metered.
func UsageMetering(cfg UsageConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.Recorder == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			return
		}
		res, ok := GetResolution(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		cfg.Recorder.Record(ctx, res.LicenseKey, usage.MetricAPICall, decimal.NewFromInt(1))
		cfg.Recorder.Record(ctx, res.LicenseKey, usage.MetricComputeSeconds, decimal.New(elapsed.Microseconds(), -6))
		if size := c.Writer.Size(); size > 0 {
			cfg.Recorder.Record(ctx, res.LicenseKey, usage.MetricBandwidthBytes, decimal.NewFromInt(int64(size)))
		}
		if cfg.Logger != nil && c.Writer.Status() >= http.StatusInternalServerError {
			cfg.Logger.Debug("Metered failed product request",
				zap.String("license_key", res.LicenseKey.String()),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("elapsed", elapsed))
		}
	}
}

// QuotaGuard rejects product-key requests once the license has used its
// daily api_call allowance. Errors reading usage let the request through.
func QuotaGuard(checker QuotaChecker, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		res, ok := GetResolution(c)
		if !ok {
			c.Next()
			return
		}

		status, err := checker.CheckQuota(c.Request.Context(), res.LicenseKey, res.Plan)
		if err != nil {
			log.Warn("Quota check failed, allowing request",
				zap.String("license_key", res.LicenseKey.String()),
				zap.Error(err))
			c.Next()
			return
		}
		if !status.Unlimited {
			c.Header("X-RateLimit-Limit", status.Limit.String())
			c.Header("X-RateLimit-Remaining", status.Remaining.String())
		}
		if status.Exceeded {
			log.Info("Daily quota exceeded",
				zap.String("license_key", res.LicenseKey.String()),
				zap.String("plan", string(res.Plan)),
				zap.String("used", status.Used.String()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeQuotaExceeded, "Daily usage limit reached for this plan", GetRequestID(c)))
			return
		}
		c.Next()
	}
}
